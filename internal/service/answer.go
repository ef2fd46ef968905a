package service

import (
	"errors"
	"time"

	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AnswerService 封装回答与投票相关的业务逻辑。
type AnswerService struct {
	db *gorm.DB
}

func NewAnswerService(db *gorm.DB) *AnswerService {
	return &AnswerService{db: db}
}

// AnswerDTO 回答的公共视图。
type AnswerDTO struct {
	ID          uint      `json:"answerid"`
	UserID      uint      `json:"userid"`
	Username    string    `json:"username"`
	Body        string    `json:"answer"`
	RatingCount int       `json:"rating_count"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Post 给指定问题新增回答。
func (s *AnswerService) Post(userID uint, questionID, body string) (*AnswerDTO, error) {
	var count int64
	if err := s.db.Model(&models.Question{}).Where("question_id = ?", questionID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrQuestionNotFound
	}
	a := models.Answer{UserID: userID, QuestionID: questionID, Body: body}
	if err := s.db.Create(&a).Error; err != nil {
		return nil, err
	}
	var user models.User
	if err := s.db.Select("id", "username").First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &AnswerDTO{ID: a.ID, UserID: a.UserID, Username: user.Username, Body: a.Body, RatingCount: a.RatingCount, CreatedAt: a.CreatedAt}, nil
}

// ListByQuestion 返回某问题下的全部回答，按创建时间倒序。
func (s *AnswerService) ListByQuestion(questionID string) ([]AnswerDTO, error) {
	var answers []models.Answer
	if err := s.db.Where("question_id = ?", questionID).Order("created_at desc").Find(&answers).Error; err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(answers))
	seen := make(map[uint]struct{}, len(answers))
	for _, a := range answers {
		if _, ok := seen[a.UserID]; ok {
			continue
		}
		seen[a.UserID] = struct{}{}
		ids = append(ids, a.UserID)
	}
	usernames := make(map[uint]string, len(ids))
	if len(ids) > 0 {
		var users []models.User
		if err := s.db.Select("id", "username").Where("id IN ?", ids).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			usernames[u.ID] = u.Username
		}
	}
	out := make([]AnswerDTO, 0, len(answers))
	for _, a := range answers {
		out = append(out, AnswerDTO{ID: a.ID, UserID: a.UserID, Username: usernames[a.UserID], Body: a.Body, RatingCount: a.RatingCount, CreatedAt: a.CreatedAt})
	}
	return out, nil
}

// 投票取值，落库存 +1 / -1。
const (
	VoteUp   = "upvote"
	VoteDown = "downvote"
)

// Rate 记录一次投票：重复同向投票撤销，反向投票改票，首次投票新增。
// 整个过程在一个事务里完成，rating_count 始终等于票值之和。
func (s *AnswerService) Rate(answerID, userID uint, voteType string) (int, error) {
	var value int
	switch voteType {
	case VoteUp:
		value = 1
	case VoteDown:
		value = -1
	default:
		return 0, ErrInvalidVote
	}

	var newTotal int
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var answer models.Answer
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&answer, answerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAnswerNotFound
			}
			return err
		}

		delta := value
		var existing models.AnswerRating
		err := tx.Where("answer_id = ? AND user_id = ?", answerID, userID).First(&existing).Error
		switch {
		case err == nil && existing.VoteType == value:
			// 同向重复投票视为撤销。
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
			delta = -value
		case err == nil:
			old := existing.VoteType
			existing.VoteType = value
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			delta = value - old
		case errors.Is(err, gorm.ErrRecordNotFound):
			rating := models.AnswerRating{AnswerID: answerID, UserID: userID, VoteType: value}
			if err := tx.Create(&rating).Error; err != nil {
				return err
			}
		default:
			return err
		}

		newTotal = answer.RatingCount + delta
		return tx.Model(&models.Answer{}).Where("id = ?", answerID).Update("rating_count", newTotal).Error
	})
	if err != nil {
		return 0, err
	}
	return newTotal, nil
}
