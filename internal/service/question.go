package service

import (
	"errors"
	"time"

	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuestionService 封装提问相关的业务逻辑。
type QuestionService struct {
	db *gorm.DB
}

func NewQuestionService(db *gorm.DB) *QuestionService {
	return &QuestionService{db: db}
}

// QuestionDTO 问题列表与详情的公共视图。
type QuestionDTO struct {
	QuestionID  string    `json:"questionid"`
	UserID      uint      `json:"userid"`
	Username    string    `json:"username"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tag         string    `json:"tag,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Ask 创建新问题，外部 ID 用 UUID 避免暴露自增主键。
func (s *QuestionService) Ask(userID uint, title, description, tag string) (*QuestionDTO, error) {
	q := models.Question{
		QuestionID:  uuid.NewString(),
		UserID:      userID,
		Title:       title,
		Description: description,
		Tag:         tag,
	}
	if err := s.db.Create(&q).Error; err != nil {
		return nil, err
	}
	return s.toDTO(q)
}

// List 返回全部问题，按创建时间倒序。
func (s *QuestionService) List() ([]QuestionDTO, error) {
	var questions []models.Question
	if err := s.db.Order("created_at desc").Find(&questions).Error; err != nil {
		return nil, err
	}
	usernames, err := s.usernamesFor(questions)
	if err != nil {
		return nil, err
	}
	out := make([]QuestionDTO, 0, len(questions))
	for _, q := range questions {
		out = append(out, QuestionDTO{
			QuestionID:  q.QuestionID,
			UserID:      q.UserID,
			Username:    usernames[q.UserID],
			Title:       q.Title,
			Description: q.Description,
			Tag:         q.Tag,
			CreatedAt:   q.CreatedAt,
		})
	}
	return out, nil
}

// Get 按外部 ID 读取单个问题。
func (s *QuestionService) Get(questionID string) (*QuestionDTO, error) {
	var q models.Question
	if err := s.db.Where("question_id = ?", questionID).First(&q).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}
	return s.toDTO(q)
}

func (s *QuestionService) toDTO(q models.Question) (*QuestionDTO, error) {
	var user models.User
	if err := s.db.Select("id", "username").First(&user, q.UserID).Error; err != nil {
		return nil, err
	}
	return &QuestionDTO{
		QuestionID:  q.QuestionID,
		UserID:      q.UserID,
		Username:    user.Username,
		Title:       q.Title,
		Description: q.Description,
		Tag:         q.Tag,
		CreatedAt:   q.CreatedAt,
	}, nil
}

func (s *QuestionService) usernamesFor(questions []models.Question) (map[uint]string, error) {
	ids := make([]uint, 0, len(questions))
	seen := make(map[uint]struct{}, len(questions))
	for _, q := range questions {
		if _, ok := seen[q.UserID]; ok {
			continue
		}
		seen[q.UserID] = struct{}{}
		ids = append(ids, q.UserID)
	}
	usernames := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return usernames, nil
	}
	var users []models.User
	if err := s.db.Select("id", "username").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		usernames[u.ID] = u.Username
	}
	return usernames, nil
}
