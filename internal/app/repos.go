package app

import (
	"gorm.io/gorm"

	"github.com/mathscrap/mathscrap-backend/internal/logger"
	"github.com/mathscrap/mathscrap-backend/internal/repos"
)

type Repos struct {
	Jobs    repos.JobRepo
	Images  repos.ImageTaskRepo
	Lessons repos.LessonRepo
}

func wireRepos(theDB *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Jobs:    repos.NewJobRepo(theDB, log),
		Images:  repos.NewImageTaskRepo(theDB, log),
		Lessons: repos.NewLessonRepo(theDB, log),
	}
}
