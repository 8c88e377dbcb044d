// Command seed provisions a development database with an admin account
// and a small published competency catalog.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/skilltrack/competency-api/internal/models"
	"github.com/skilltrack/competency-api/pkg/config"
	"github.com/skilltrack/competency-api/pkg/database"
)

type seedUser struct {
	Email    string
	FullName string
	Role     models.UserRole
}

func main() {
	var (
		password string
		timeout  time.Duration
	)
	flag.StringVar(&password, "password", "ChangeMe123!", "Password assigned to every seeded account")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Overall seeding timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	users := []seedUser{
		{Email: "admin@skilltrack.local", FullName: "Platform Admin", Role: models.RoleAdmin},
		{Email: "staff@skilltrack.local", FullName: "Training Staff", Role: models.RoleStaff},
		{Email: "trainer@skilltrack.local", FullName: "Lead Trainer", Role: models.RoleTrainer},
		{Email: "learner@skilltrack.local", FullName: "Sample Learner", Role: models.RoleLearner},
	}
	for _, u := range users {
		if err := upsertUser(ctx, db, u, string(hash)); err != nil {
			log.Fatalf("failed to seed user %s: %v", u.Email, err)
		}
	}

	trainerID, err := userID(ctx, db, "trainer@skilltrack.local")
	if err != nil {
		log.Fatalf("failed to resolve trainer: %v", err)
	}

	competencies := []string{"Backend Engineering", "Data Analysis"}
	for _, name := range competencies {
		if err := seedCompetency(ctx, db, name, trainerID); err != nil {
			log.Fatalf("failed to seed competency %s: %v", name, err)
		}
	}

	log.Printf("seeded %d users and %d competencies", len(users), len(competencies))
}

func upsertUser(ctx context.Context, db *sqlx.DB, u seedUser, hash string) error {
	const query = `INSERT INTO users (id, email, password_hash, full_name, role, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, NOW(), NOW())
		ON CONFLICT (email) DO NOTHING`
	_, err := db.ExecContext(ctx, query, uuid.NewString(), u.Email, hash, u.FullName, u.Role)
	return err
}

func userID(ctx context.Context, db *sqlx.DB, email string) (string, error) {
	var id string
	err := db.GetContext(ctx, &id, `SELECT id FROM users WHERE email = $1`, email)
	return id, err
}

func seedCompetency(ctx context.Context, db *sqlx.DB, name, trainerID string) error {
	var exists bool
	if err := db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM competencies WHERE name = $1 AND is_deleted = FALSE)`, name); err != nil {
		return err
	}
	if exists {
		return nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	competencyID := uuid.NewString()
	const insertCompetency = `INSERT INTO competencies (id, name, status, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, NOW(), NOW())`
	if _, err := tx.ExecContext(ctx, insertCompetency, competencyID, name, models.CompetencyStatusPublished); err != nil {
		return err
	}

	const insertLevel = `INSERT INTO competency_levels (id, competency_id, name, overview, objectives, project_brief, trainer_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`
	for _, level := range models.LevelNames {
		overview := string(level) + " level of " + name
		if _, err := tx.ExecContext(ctx, insertLevel,
			uuid.NewString(), competencyID, level, overview,
			"Demonstrate "+string(level)+" proficiency", "Deliver a scoped project", trainerID); err != nil {
			return err
		}
	}

	return tx.Commit()
}
