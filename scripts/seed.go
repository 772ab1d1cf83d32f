package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/proagenda/calendar-engine/internal/adapters/database"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/infrastructure/clients/postgres"
	"github.com/proagenda/calendar-engine/pkg/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS calendar_events (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	start_at TIMESTAMPTZ NOT NULL,
	end_at TIMESTAMPTZ NOT NULL,
	all_day BOOLEAN NOT NULL DEFAULT FALSE,
	source TEXT NOT NULL DEFAULT 'local',
	remote_id TEXT NOT NULL DEFAULT '',
	color TEXT NOT NULL DEFAULT '',
	editable BOOLEAN NOT NULL DEFAULT TRUE,
	kind TEXT NOT NULL DEFAULT 'event',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (end_at > start_at)
);
CREATE INDEX IF NOT EXISTS idx_calendar_events_owner_range
	ON calendar_events (owner_id, start_at, end_at);

CREATE TABLE IF NOT EXISTS appointments (
	id TEXT PRIMARY KEY,
	professional_id TEXT NOT NULL,
	client_id TEXT NOT NULL,
	start_at TIMESTAMPTZ NOT NULL,
	duration_minutes INT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	modality TEXT NOT NULL DEFAULT 'video',
	remote_event_id TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_appointments_professional
	ON appointments (professional_id, start_at);
CREATE INDEX IF NOT EXISTS idx_appointments_client
	ON appointments (client_id, start_at);

CREATE TABLE IF NOT EXISTS availability_template_ranges (
	id SERIAL PRIMARY KEY,
	owner_id TEXT NOT NULL,
	weekday INT NOT NULL CHECK (weekday BETWEEN 0 AND 6),
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	start_clock TEXT NOT NULL,
	end_clock TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_availability_template_owner
	ON availability_template_ranges (owner_id, weekday);

CREATE TABLE IF NOT EXISTS provider_credentials (
	owner_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	access_token TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT 'disconnected',
	last_sync_at TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (owner_id, provider)
);
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pgClient.Close()

	ctx := context.Background()

	if os.Getenv("RESET_DB") == "true" {
		log.Println("RESET_DB=true detected, truncating tables before seeding")
		_, err := pgClient.DB().ExecContext(ctx, `
			TRUNCATE TABLE
				calendar_events,
				appointments,
				availability_template_ranges,
				provider_credentials
			RESTART IDENTITY CASCADE
		`)
		if err != nil {
			log.Fatalf("Failed to reset tables: %v", err)
		}
	}

	if _, err := pgClient.DB().ExecContext(ctx, schema); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	log.Println("Schema applied")

	eventRepo := database.NewEventAdapter(pgClient)

	ownerID := getEnvDefault("SEED_OWNER_ID", "demo-professional")
	clientID := getEnvDefault("SEED_CLIENT_ID", "demo-client")

	// 1. Seed a weekday availability template, 09:00-12:00 and 13:00-17:00
	if _, err := pgClient.DB().ExecContext(ctx, `DELETE FROM availability_template_ranges WHERE owner_id = $1`, ownerID); err != nil {
		log.Fatalf("Failed to clear template: %v", err)
	}
	for weekday := 1; weekday <= 5; weekday++ {
		for _, rng := range []entities.TimeRange{
			{Start: "09:00", End: "12:00"},
			{Start: "13:00", End: "17:00"},
		} {
			_, err := pgClient.DB().ExecContext(ctx, `
				INSERT INTO availability_template_ranges (owner_id, weekday, enabled, start_clock, end_clock)
				VALUES ($1, $2, TRUE, $3, $4)
			`, ownerID, weekday, rng.Start, rng.End)
			if err != nil {
				log.Fatalf("Failed to seed template range: %v", err)
			}
		}
	}
	log.Println("Availability template seeded")

	// 2. Seed a handful of local events over the coming days
	now := time.Now()
	nextMorning := time.Date(now.Year(), now.Month(), now.Day(), 10, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	seedEvents := []entities.CalendarEvent{
		{
			ID:       uuid.New().String(),
			Title:    "Team sync",
			Start:    nextMorning,
			End:      nextMorning.Add(30 * time.Minute),
			Editable: true,
		},
		{
			ID:       uuid.New().String(),
			Title:    "Lunch with Ana",
			Start:    nextMorning.Add(3 * time.Hour),
			End:      nextMorning.Add(4 * time.Hour),
			Editable: true,
		},
		{
			ID:    uuid.New().String(),
			Title: "Open for walk-ins",
			Start: nextMorning.AddDate(0, 0, 4).Add(-2 * time.Hour),
			End:   nextMorning.AddDate(0, 0, 4).Add(2 * time.Hour),
			Kind:  entities.KindAvailabilityBlock,
		},
	}
	for _, ev := range seedEvents {
		if _, err := eventRepo.Create(ctx, ownerID, &ev); err != nil {
			log.Printf("Failed to create event %s: %v", ev.Title, err)
		}
	}
	log.Printf("Seeded %d local events for %s", len(seedEvents), ownerID)

	// 3. Seed one appointment on the client's side so mutual-slot queries
	// have something to exclude
	appointmentRepo := database.NewAppointmentAdapter(pgClient)
	appointment := &entities.Appointment{
		ID:              uuid.New().String(),
		ProfessionalID:  "another-professional",
		ClientID:        clientID,
		Start:           nextMorning.Add(24 * time.Hour),
		DurationMinutes: 45,
		Status:          entities.AppointmentStatusConfirmed,
		Modality:        entities.ModalityVideo,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := appointmentRepo.Create(ctx, appointment); err != nil {
		log.Printf("Failed to create appointment: %v", err)
	} else {
		log.Printf("Seeded one appointment for %s", clientID)
	}

	log.Println("Seeding complete")
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
