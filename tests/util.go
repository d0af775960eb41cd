// Package testutil sets up databases and fixtures for the tests.
package testutil

import (
	"context"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gigglesedu/giggles/core"
	"github.com/gigglesedu/giggles/core/catalog"
	"github.com/gigglesedu/giggles/core/user"
	"github.com/gigglesedu/giggles/storage/database"
)

func openDB(dir string) (*sqlx.DB, error) {
	conf := *core.Conf
	conf.Database.Engine = database.EngineSQLite
	conf.Database.Path = filepath.Join(dir, "test.db")

	db, err := database.Open(&conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(db.DB, conf.Database.Engine); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenDB opens a migrated sqlite database in a temporary directory, for TestMain.
// The returned func closes and removes it.
func OpenDB() (*sqlx.DB, func()) {
	dir, err := ioutil.TempDir("", "giggles-test-")
	if err != nil {
		log.Fatalf("testutil.OpenDB(): %v", err)
	}
	db, err := openDB(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		log.Fatalf("testutil.OpenDB(): %+v", err)
	}
	return db, func() {
		_ = db.Close()
		_ = os.RemoveAll(dir)
	}
}

// PrepareDB opens a migrated sqlite database private to t.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := openDB(t.TempDir())
	if err != nil {
		t.Fatalf("testutil.PrepareDB(): %+v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	fullName, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := core.Now()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Email:     email,
		FullName:  fullName,
		UserType:  user.TypeLearner,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser(): %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser(): %v", err)
	}
	return usr
}

func CreateCourse(t *testing.T, repo catalog.Repository, name, slug string) catalog.Course {
	t.Helper()
	course, err := repo.CreateCourse(context.Background(), catalog.Course{
		Name:        name,
		Slug:        slug,
		Description: name + " course",
		CreatedAt:   core.Now(),
	})
	if err != nil {
		t.Fatalf("createCourse(): %v", err)
	}
	return course
}

func CreateLesson(t *testing.T, repo catalog.Repository, course catalog.Course, name, slug string, maxScore, difficulty int) catalog.Lesson {
	t.Helper()
	lesson, err := repo.CreateLesson(context.Background(), catalog.Lesson{
		CourseID:        course.ID,
		Name:            name,
		Slug:            slug,
		MaxScore:        maxScore,
		DifficultyLevel: difficulty,
		CreatedAt:       core.Now(),
	})
	if err != nil {
		t.Fatalf("createLesson(): %v", err)
	}
	return lesson
}

// CreateAssessment creates an assessment of course, linked to lessonID unless empty.
func CreateAssessment(
	t *testing.T,
	repo catalog.Repository,
	course catalog.Course,
	lessonID, title string,
	totalQuestions int,
	passingScore float64,
) catalog.Assessment {
	t.Helper()
	assessment, err := repo.CreateAssessment(context.Background(), catalog.Assessment{
		CourseID:       course.ID,
		LessonID:       lessonID,
		Title:          title,
		TotalQuestions: totalQuestions,
		PassingScore:   passingScore,
		CreatedAt:      core.Now(),
	})
	if err != nil {
		t.Fatalf("createAssessment(): %v", err)
	}
	return assessment
}
