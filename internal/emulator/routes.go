package emulator

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/GriffinCanCode/webview-isolation/internal/emulator/sandbox"
	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/monitoring"
)

// elementKey is the W3C web element identifier.
const elementKey = "element-6066-11e4-a52e-4f735466cecf"

const sessionKey = "emulator.session"

func (e *Emulator) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(e.cfg.Metrics, "emulator"))

	router.GET("/status", e.status)
	router.POST("/session", e.newSession)

	s := router.Group("/session/:id", e.requireSession)
	{
		s.DELETE("", e.deleteSession)
		s.GET("/window", e.getWindow)
		s.POST("/window", e.switchWindow)
		s.GET("/window/handles", e.windowHandles)
		s.POST("/frame", e.switchFrame)
		s.POST("/frame/parent", e.parentFrame)
		s.GET("/url", e.getURL)
		s.POST("/url", e.navigate)
		s.POST("/execute/sync", e.execute)
		s.POST("/elements", e.findElements)
		s.GET("/element/:eid/attribute/:name", e.attribute)
	}

	router.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "unknown command", c.Request.Method+" "+c.Request.URL.Path)
	})
	return router
}

func reply(c *gin.Context, value any) {
	c.JSON(http.StatusOK, gin.H{"value": value})
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"value": gin.H{
		"error":      code,
		"message":    message,
		"stacktrace": "",
	}})
}

// failWith maps session errors onto W3C error responses.
func failWith(c *gin.Context, err error) {
	var scriptErr *sandbox.ScriptError
	switch {
	case errors.As(err, &scriptErr):
		fail(c, http.StatusInternalServerError, "javascript error", scriptErr.Message)
	case errors.Is(err, sandbox.ErrTimeout):
		fail(c, http.StatusInternalServerError, "script timeout", err.Error())
	case errors.Is(err, errNoSuchWindow), errors.Is(err, errSessionClosed):
		fail(c, http.StatusNotFound, "no such window", err.Error())
	case errors.Is(err, errNoSuchFrame):
		fail(c, http.StatusNotFound, "no such frame", err.Error())
	case errors.Is(err, errNoSuchElement):
		fail(c, http.StatusNotFound, "no such element", err.Error())
	default:
		fail(c, http.StatusInternalServerError, "unknown error", err.Error())
	}
}

func (e *Emulator) requireSession(c *gin.Context) {
	s, ok := e.session(c.Param("id"))
	if !ok {
		fail(c, http.StatusNotFound, "invalid session id", "no session "+c.Param("id"))
		return
	}
	c.Set(sessionKey, s)
	c.Next()
}

func current(c *gin.Context) *appSession {
	return c.MustGet(sessionKey).(*appSession)
}

func (e *Emulator) status(c *gin.Context) {
	reply(c, gin.H{"ready": true, "message": "emulator ready"})
}

func (e *Emulator) newSession(c *gin.Context) {
	doc, err := e.document()
	if err == nil {
		err = doc.Validate()
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "session not created", err.Error())
		return
	}

	s, err := e.launch(c.Request.Context(), doc)
	if err != nil {
		fail(c, http.StatusInternalServerError, "session not created", err.Error())
		return
	}

	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()
	e.created.Add(1)

	e.logger.Info("session created", zap.String("session", s.id), zap.Int("teams", len(doc.Teams)))
	reply(c, gin.H{
		"sessionId": s.id,
		"capabilities": gin.H{
			"browserName":    "emulator",
			"browserVersion": "1.0",
			"platformName":   "any",
		},
	})
}

func (e *Emulator) deleteSession(c *gin.Context) {
	s := current(c)
	e.mu.Lock()
	delete(e.sessions, s.id)
	e.mu.Unlock()

	s.close()
	e.deleted.Add(1)
	e.logger.Info("session deleted", zap.String("session", s.id))
	reply(c, nil)
}

func (e *Emulator) getWindow(c *gin.Context) {
	reply(c, current(c).currentHandle())
}

func (e *Emulator) switchWindow(c *gin.Context) {
	var body struct {
		Handle string `json:"handle"`
		Name   string `json:"name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "invalid argument", err.Error())
		return
	}
	handle := body.Handle
	if handle == "" {
		handle = body.Name
	}
	if err := current(c).switchWindow(handle); err != nil {
		failWith(c, err)
		return
	}
	reply(c, nil)
}

func (e *Emulator) windowHandles(c *gin.Context) {
	handles, err := current(c).handles()
	if err != nil {
		failWith(c, err)
		return
	}
	reply(c, handles)
}

func (e *Emulator) switchFrame(c *gin.Context) {
	var body struct {
		ID any `json:"id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "invalid argument", err.Error())
		return
	}

	var index *int
	switch id := body.ID.(type) {
	case nil:
	case float64:
		i := int(id)
		index = &i
	default:
		fail(c, http.StatusNotFound, "no such frame", "only frame indices are supported")
		return
	}

	if err := current(c).switchFrame(index); err != nil {
		failWith(c, err)
		return
	}
	reply(c, nil)
}

func (e *Emulator) parentFrame(c *gin.Context) {
	current(c).parentFrame()
	reply(c, nil)
}

func (e *Emulator) getURL(c *gin.Context) {
	reply(c, current(c).currentURL())
}

func (e *Emulator) navigate(c *gin.Context) {
	var body struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.URL == "" {
		fail(c, http.StatusBadRequest, "invalid argument", "url is required")
		return
	}
	if err := current(c).navigate(c.Request.Context(), body.URL); err != nil {
		failWith(c, err)
		return
	}
	reply(c, nil)
}

func (e *Emulator) execute(c *gin.Context) {
	var body struct {
		Script string `json:"script"`
		Args   []any  `json:"args"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "invalid argument", err.Error())
		return
	}

	bc, err := current(c).context()
	if err != nil {
		failWith(c, err)
		return
	}
	value, err := bc.runtime.Call(c.Request.Context(), body.Script, body.Args)
	if err != nil {
		failWith(c, err)
		return
	}
	reply(c, value)
}

func (e *Emulator) findElements(c *gin.Context) {
	var body struct {
		Using string `json:"using"`
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "invalid argument", err.Error())
		return
	}

	s := current(c)
	bc, err := s.context()
	if err != nil {
		failWith(c, err)
		return
	}

	var nodes []*html.Node
	switch body.Using {
	case "css selector":
		nodes, err = bc.dom.QueryCSS(body.Value)
	case "xpath":
		nodes, err = bc.dom.QueryXPath(body.Value)
	case "tag name":
		nodes, err = bc.dom.QueryCSS(body.Value)
	default:
		fail(c, http.StatusBadRequest, "invalid argument", "unsupported locator strategy "+body.Using)
		return
	}
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid selector", err.Error())
		return
	}

	refs := make([]gin.H, 0, len(nodes))
	for _, id := range s.register(nodes) {
		refs = append(refs, gin.H{elementKey: id})
	}
	reply(c, refs)
}

func (e *Emulator) attribute(c *gin.Context) {
	n, err := current(c).element(c.Param("eid"))
	if err != nil {
		failWith(c, err)
		return
	}
	if v, ok := sandbox.Attribute(n, c.Param("name")); ok {
		reply(c, v)
		return
	}
	reply(c, nil)
}
