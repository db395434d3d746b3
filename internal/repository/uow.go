package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories is the set of repositories bound to one database handle or transaction.
type Repositories struct {
	Assignments   AssignmentRepository
	Submissions   SubmissionRepository
	Versions      VersionRepository
	Rules         GradingRuleRepository
	LatePenalties LateSubmissionRepository
	Rubrics       RubricRepository
	Plagiarism    PlagiarismRepository
	Activity      ActivityLogRepository
}

// NewRepositories binds every repository to db.
func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Assignments:   NewAssignmentRepository(db),
		Submissions:   NewSubmissionRepository(db),
		Versions:      NewVersionRepository(db),
		Rules:         NewGradingRuleRepository(db),
		LatePenalties: NewLateSubmissionRepository(db),
		Rubrics:       NewRubricRepository(db),
		Plagiarism:    NewPlagiarismRepository(db),
		Activity:      NewActivityLogRepository(db),
	}
}

// UnitOfWork runs multi-step writes atomically.
type UnitOfWork interface {
	// Repositories returns repositories outside of any transaction, for reads.
	Repositories() Repositories
	// Do runs fn inside one transaction. Returning an error, or a cancelled ctx, rolls everything back.
	Do(ctx context.Context, fn func(repos Repositories) error) error
}

type gormUnitOfWork struct {
	db    *gorm.DB
	repos Repositories
}

// NewUnitOfWork builds a GORM-backed unit of work.
func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &gormUnitOfWork{db: db, repos: NewRepositories(db)}
}

func (u *gormUnitOfWork) Repositories() Repositories {
	return u.repos
}

func (u *gormUnitOfWork) Do(ctx context.Context, fn func(repos Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
