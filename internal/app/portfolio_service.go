package app

import (
	"errors"
	"strings"

	"portfoliohub/internal/model"
	"portfoliohub/internal/repository"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrUserNotFound    = errors.New("user not found")
)

// PortfolioService manages profiles and project lists, and assembles the
// public per-username page payload.
type PortfolioService struct {
	users    UserStore
	profiles *repository.ProfileRepository
	projects *repository.ProjectRepository
}

func NewPortfolioService(
	users UserStore,
	profiles *repository.ProfileRepository,
	projects *repository.ProjectRepository,
) *PortfolioService {
	return &PortfolioService{
		users:    users,
		profiles: profiles,
		projects: projects,
	}
}

type ProfileInput struct {
	UserID      uint
	DisplayName string
	Headline    string
	Bio         string
	AvatarURL   string
}

func (s *PortfolioService) SaveProfile(input ProfileInput) (*model.Profile, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		return nil, ErrInvalidInput
	}

	profile := &model.Profile{
		UserID:      input.UserID,
		DisplayName: displayName,
		Headline:    strings.TrimSpace(input.Headline),
		Bio:         strings.TrimSpace(input.Bio),
		AvatarURL:   strings.TrimSpace(input.AvatarURL),
	}
	if err := s.profiles.Upsert(profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *PortfolioService) GetProfile(userID uint) (*model.Profile, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.profiles.GetByUserID(userID)
}

type ProjectInput struct {
	UserID      uint
	Title       string
	Description string
	URL         string
	Position    int
}

func (s *PortfolioService) CreateProject(input ProjectInput) (*model.Project, error) {
	if input.UserID == 0 || strings.TrimSpace(input.Title) == "" {
		return nil, ErrInvalidInput
	}
	project := &model.Project{
		UserID:      input.UserID,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		URL:         strings.TrimSpace(input.URL),
		Position:    input.Position,
	}
	if err := s.projects.Create(project); err != nil {
		return nil, err
	}
	return project, nil
}

func (s *PortfolioService) UpdateProject(projectID uint, input ProjectInput) (*model.Project, error) {
	if input.UserID == 0 || projectID == 0 || strings.TrimSpace(input.Title) == "" {
		return nil, ErrInvalidInput
	}
	project, err := s.projects.GetByIDAndUserID(projectID, input.UserID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}

	project.Title = strings.TrimSpace(input.Title)
	project.Description = strings.TrimSpace(input.Description)
	project.URL = strings.TrimSpace(input.URL)
	project.Position = input.Position
	if err := s.projects.Update(project); err != nil {
		return nil, err
	}
	return project, nil
}

func (s *PortfolioService) DeleteProject(userID, projectID uint) error {
	if userID == 0 || projectID == 0 {
		return ErrInvalidInput
	}
	project, err := s.projects.GetByIDAndUserID(projectID, userID)
	if err != nil {
		return err
	}
	if project == nil {
		return ErrProjectNotFound
	}
	return s.projects.DeleteByIDAndUserID(projectID, userID)
}

func (s *PortfolioService) ListProjects(userID uint) ([]model.Project, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.projects.ListByUserID(userID)
}

type PublicPortfolio struct {
	Username string          `json:"username"`
	Profile  *model.Profile  `json:"profile"`
	Projects []model.Project `json:"projects"`
}

// PublicPage returns the payload rendered on the per-username public page.
func (s *PortfolioService) PublicPage(username string) (*PublicPortfolio, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrInvalidInput
	}
	user, err := s.users.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	profile, err := s.profiles.GetByUserID(user.ID)
	if err != nil {
		return nil, err
	}
	projects, err := s.projects.ListByUserID(user.ID)
	if err != nil {
		return nil, err
	}

	return &PublicPortfolio{
		Username: user.Username,
		Profile:  profile,
		Projects: projects,
	}, nil
}
