package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"quicktestly/internal/app"
	"quicktestly/internal/domain"
	"quicktestly/internal/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// LiveCounter reports attempts in progress across instances.
type LiveCounter interface {
	CountLive(ctx context.Context) (int, error)
}

// Handler serves the REST API and the websocket streams.
type Handler struct {
	quizzes  *app.QuizService
	attempts *app.AttemptService
	hub      *app.LeaderboardHub
	live     LiveCounter
	auth     *Authenticator
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewHandler(quizzes *app.QuizService, attempts *app.AttemptService, hub *app.LeaderboardHub, live LiveCounter, auth *Authenticator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		quizzes:  quizzes,
		attempts: attempts,
		hub:      hub,
		live:     live,
		auth:     auth,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	Mode        string
	CORSOrigins []string
	RateLimit   int
	RateWindow  time.Duration
	Metrics     *metrics.Metrics
	// Done stops background middleware work.
	Done <-chan struct{}
}

// Router builds the gin engine with every route.
func (h *Handler) Router(opts RouterOptions) *gin.Engine {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	corsCfg := cors.DefaultConfig()
	if len(opts.CORSOrigins) > 0 {
		corsCfg.AllowOrigins = opts.CORSOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	r.Use(cors.New(corsCfg))

	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	// websockets carry their token in the query string
	ws := r.Group("/ws", h.auth.Middleware())
	ws.GET("/attempt", h.attemptWS)
	ws.GET("/leaderboard", h.leaderboardWS)

	api := r.Group("/api", RateLimit(opts.RateLimit, opts.RateWindow, opts.Done), h.auth.Middleware())
	api.GET("/quizzes", h.listPublicQuizzes)
	api.GET("/quizzes/:id", h.getQuiz)
	api.GET("/quizzes/:id/leaderboard", h.quizLeaderboard)
	api.GET("/quizzes/:id/rank", h.userRank)
	api.GET("/leaderboard", h.globalLeaderboard)
	api.GET("/me/results", h.myResults)
	api.GET("/me/stats", h.myStats)
	api.GET("/attempts/live", h.liveAttempts)

	teacher := api.Group("", RequireTeacher())
	teacher.POST("/quizzes", h.createQuiz)
	teacher.PUT("/quizzes/:id", h.updateQuiz)
	teacher.DELETE("/quizzes/:id", h.deleteQuiz)
	teacher.GET("/quizzes/:id/results", h.quizResults)
	teacher.GET("/teacher/quizzes", h.teacherQuizzes)
	teacher.GET("/teacher/dashboard", h.teacherDashboard)
	teacher.GET("/teacher/results", h.teacherResults)

	return r
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

type resultView struct {
	domain.Result
	Grade string `json:"grade"`
}

type resultsResponse struct {
	Results []resultView     `json:"results"`
	Stats   domain.QuizStats `json:"stats"`
}

func withGrades(results []domain.Result) []resultView {
	out := make([]resultView, 0, len(results))
	for _, r := range results {
		out = append(out, resultView{Result: r, Grade: domain.Grade(r.Score)})
	}
	return out
}

func (h *Handler) listPublicQuizzes(c *gin.Context) {
	quizzes, err := h.quizzes.ListPublicQuizzes(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quizzes": quizzes})
}

func (h *Handler) getQuiz(c *gin.Context) {
	quiz, err := h.quizzes.GetQuiz(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, quiz)
}

func (h *Handler) createQuiz(c *gin.Context) {
	var input app.QuizInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.fail(c, domain.NewValidationError("body", err.Error()))
		return
	}
	quiz, err := h.quizzes.CreateQuiz(c.Request.Context(), identity(c), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, quiz)
}

func (h *Handler) updateQuiz(c *gin.Context) {
	var input app.QuizInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.fail(c, domain.NewValidationError("body", err.Error()))
		return
	}
	quiz, err := h.quizzes.UpdateQuiz(c.Request.Context(), identity(c), c.Param("id"), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, quiz)
}

func (h *Handler) deleteQuiz(c *gin.Context) {
	if err := h.quizzes.DeleteQuiz(c.Request.Context(), identity(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) quizResults(c *gin.Context) {
	results, stats, err := h.quizzes.QuizResults(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resultsResponse{Results: withGrades(results), Stats: stats})
}

func (h *Handler) teacherQuizzes(c *gin.Context) {
	quizzes, err := h.quizzes.ListTeacherQuizzes(c.Request.Context(), identity(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quizzes": quizzes})
}

func (h *Handler) teacherDashboard(c *gin.Context) {
	stats, err := h.quizzes.TeacherDashboard(c.Request.Context(), identity(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) teacherResults(c *gin.Context) {
	results, stats, err := h.quizzes.TeacherResults(c.Request.Context(), identity(c), c.Query("quizId"), c.Query("q"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resultsResponse{Results: withGrades(results), Stats: stats})
}

func (h *Handler) quizLeaderboard(c *gin.Context) {
	lb, err := h.quizzes.QuizLeaderboard(c.Request.Context(), c.Param("id"), queryLimit(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lb)
}

func (h *Handler) globalLeaderboard(c *gin.Context) {
	lb, err := h.quizzes.GlobalLeaderboard(c.Request.Context(), queryLimit(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lb)
}

func (h *Handler) userRank(c *gin.Context) {
	rank, err := h.quizzes.UserRank(c.Request.Context(), c.Param("id"), identity(c).ID, queryLimit(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quizId": c.Param("id"), "rank": rank})
}

func (h *Handler) myResults(c *gin.Context) {
	results, err := h.quizzes.UserResults(c.Request.Context(), identity(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": withGrades(results)})
}

func (h *Handler) myStats(c *gin.Context) {
	stats, err := h.quizzes.UserStats(c.Request.Context(), identity(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) liveAttempts(c *gin.Context) {
	if h.live == nil {
		c.JSON(http.StatusOK, gin.H{"live": 0})
		return
	}
	n, err := h.live.CountLive(c.Request.Context())
	if err != nil {
		h.fail(c, domain.Transient("count live attempts", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"live": n})
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return limit
}
