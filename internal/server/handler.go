package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/auth"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/chat"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	userSvc     *service.UserService
	questionSvc *service.QuestionService
	answerSvc   *service.AnswerService
	chatStore   *chat.Store
}

func NewHandler(userSvc *service.UserService, questionSvc *service.QuestionService, answerSvc *service.AnswerService, chatStore *chat.Store) *Handler {
	return &Handler{userSvc: userSvc, questionSvc: questionSvc, answerSvc: answerSvc, chatStore: chatStore}
}

// Register 处理用户注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Username  string `json:"username"`
		FirstName string `json:"firstname"`
		LastName  string `json:"lastname"`
		Email     string `json:"email"`
		Password  string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.FirstName == "" || req.LastName == "" || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "all fields are required"})
		return
	}
	if len(req.Username) < 2 || len(req.Username) > 20 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username"})
		return
	}
	if !strings.Contains(req.Email, "@") || len(req.Email) > 40 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		return
	}
	if len(req.Password) < 8 || len(req.Password) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 8 characters"})
		return
	}
	result, err := h.userSvc.Register(service.RegisterInput{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		if errors.Is(err, service.ErrUsernameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "username taken"})
			return
		}
		if errors.Is(err, service.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email taken"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("register")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": result.ID, "username": result.Username, "email": result.Email})
}

// Login 处理用户登录请求，接受用户名或邮箱。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Login    string `json:"login"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	login := strings.TrimSpace(req.Login)
	if login == "" {
		login = strings.TrimSpace(req.Email)
	}
	if login == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.Login(login, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		log.Error().Err(err).Str("login", login).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"user": gin.H{
			"id":        result.User.ID,
			"username":  result.User.Username,
			"firstname": result.User.FirstName,
			"email":     result.User.Email,
		},
	})
}

// RefreshToken 处理 token 刷新请求。
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.RefreshTokens(req.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("refresh token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": result.AccessToken, "refresh_token": result.RefreshToken})
}

// CheckUser 返回当前登录用户的快照，供前端恢复会话。
func (h *Handler) CheckUser(c *gin.Context) {
	profile, err := h.userSvc.CheckUser(auth.GetUserID(c))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("check user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": profile})
}

// AskQuestion 处理发布问题请求。
func (h *Handler) AskQuestion(c *gin.Context) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Tag         string `json:"tag"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	if req.Title == "" || req.Description == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "all fields are required"})
		return
	}
	if len(req.Title) > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title too long"})
		return
	}
	question, err := h.questionSvc.Ask(auth.GetUserID(c), req.Title, req.Description, req.Tag)
	if err != nil {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("ask question")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to post question"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"question": question})
}

// ListQuestions 处理获取全部问题请求。
func (h *Handler) ListQuestions(c *gin.Context) {
	questions, err := h.questionSvc.List()
	if err != nil {
		log.Error().Err(err).Msg("list questions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list questions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

// GetQuestion 返回单个问题及其全部回答。
func (h *Handler) GetQuestion(c *gin.Context) {
	questionID := c.Param("questionId")
	question, err := h.questionSvc.Get(questionID)
	if err != nil {
		if errors.Is(err, service.ErrQuestionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
			return
		}
		log.Error().Err(err).Str("question_id", questionID).Msg("get question")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load question"})
		return
	}
	answers, err := h.answerSvc.ListByQuestion(questionID)
	if err != nil {
		log.Error().Err(err).Str("question_id", questionID).Msg("get question answers")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load question"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"question": question, "answers": answers})
}

// PostAnswer 处理给问题新增回答的请求。
func (h *Handler) PostAnswer(c *gin.Context) {
	var req struct {
		QuestionID string `json:"questionid"`
		Answer     string `json:"answer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Answer = strings.TrimSpace(req.Answer)
	if req.QuestionID == "" || req.Answer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "all fields are required"})
		return
	}
	answer, err := h.answerSvc.Post(auth.GetUserID(c), req.QuestionID, req.Answer)
	if err != nil {
		if errors.Is(err, service.ErrQuestionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
			return
		}
		log.Error().Err(err).Str("question_id", req.QuestionID).Msg("post answer")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to post answer"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"answer": answer})
}

// ListAnswers 处理获取某问题回答列表的请求。
func (h *Handler) ListAnswers(c *gin.Context) {
	questionID := c.Param("questionId")
	answers, err := h.answerSvc.ListByQuestion(questionID)
	if err != nil {
		log.Error().Err(err).Str("question_id", questionID).Msg("list answers")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list answers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"answers": answers})
}

// RateAnswer 处理回答投票请求，返回投票后的总分。
func (h *Handler) RateAnswer(c *gin.Context) {
	answerID, err := strconv.Atoi(c.Param("id"))
	if err != nil || answerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid answer id"})
		return
	}
	var req struct {
		RatingType string `json:"ratingType"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RatingType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	total, err := h.answerSvc.Rate(uint(answerID), auth.GetUserID(c), req.RatingType)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidVote):
			c.JSON(http.StatusBadRequest, gin.H{"error": "rating type must be 'upvote' or 'downvote'"})
		case errors.Is(err, service.ErrAnswerNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "answer not found"})
		default:
			log.Error().Err(err).Int("answer_id", answerID).Msg("rate answer")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rate answer"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"newTotalRating": total})
}

// ChatHistory 是 websocket fetch_chat_history 的 HTTP 兜底。
func (h *Handler) ChatHistory(c *gin.Context) {
	roomID := c.Param("roomId")
	limit := chat.HistoryLimit
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	messages, err := h.chatStore.ListByRoom(roomID, limit)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("chat history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "messages": messages})
}
