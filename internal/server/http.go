package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/DominicWuest/versect/pkg/versect"
	"github.com/dchest/uniuri"
	"github.com/gin-gonic/gin"
	"github.com/phayes/freeport"
)

type httpServer struct {
	cfg Config

	mu   sync.Mutex
	jobs map[string]*jobState
}

// jobState tracks one bisection session driven through the API.
type jobState struct {
	mu sync.Mutex

	status   string // "running", "done" or "failed"
	progress *versect.Progress
	boundary *versect.Boundary
	err      error
}

func (h *httpServer) Init(cfg Config) error {
	h.cfg = cfg
	h.jobs = make(map[string]*jobState)

	port := cfg.Port
	if port == 0 {
		var err error
		port, err = freeport.GetFreePort()
		if err != nil {
			return err
		}
	}

	router := gin.Default()

	router.GET("/versions", h.getVersions)
	router.POST("/jobs", h.postJob)
	router.GET("/jobs/:jobId", h.getJob)

	if cfg.Log != nil {
		cfg.Log.Infof("Serving bisection API on localhost:%d", port)
	}

	go router.Run(fmt.Sprintf("localhost:%d", port))
	return nil
}

type jobRequest struct {
	GoodVersion string `json:"goodVersion"`
	BadVersion  string `json:"badVersion"`

	Payload string   `json:"payload"`
	Args    []string `json:"args"`
}

type jobResponse struct {
	JobId string `json:"jobId"`
}

type progressResponse struct {
	Left  int `json:"left"`
	Right int `json:"right"`
	Total int `json:"total"`

	Version string `json:"version"`
	Outcome string `json:"outcome"`
}

type jobStatusResponse struct {
	Status string `json:"status"`

	Progress *progressResponse `json:"progress,omitempty"`

	LastGood string `json:"lastGood,omitempty"`
	FirstBad string `json:"firstBad,omitempty"`
	Runs     int    `json:"runs,omitempty"`

	Error string `json:"error,omitempty"`
}

func (h *httpServer) postJob(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	state := &jobState{status: "running"}
	id := uniuri.New()
	h.mu.Lock()
	h.jobs[id] = state
	h.mu.Unlock()

	job := &versect.Job{
		GoodVersion:   req.GoodVersion,
		BadVersion:    req.BadVersion,
		PayloadSource: req.Payload,
		Args:          req.Args,
		Headless:      h.cfg.Headless,

		Releases:    h.cfg.Releases,
		Executables: h.cfg.Executables,
		Payloads:    h.cfg.Payloads,

		Log: h.cfg.Log,

		Observer: func(p versect.Progress) {
			state.mu.Lock()
			state.progress = &p
			state.mu.Unlock()
		},
	}

	go func() {
		boundary, err := job.Run(context.Background())
		state.mu.Lock()
		defer state.mu.Unlock()
		if err != nil {
			state.status = "failed"
			state.err = err
			return
		}
		state.status = "done"
		state.boundary = boundary
	}()

	c.JSON(http.StatusAccepted, jobResponse{JobId: id})
}

func (h *httpServer) getJob(c *gin.Context) {
	h.mu.Lock()
	state, found := h.jobs[c.Param("jobId")]
	h.mu.Unlock()
	if !found {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	res := jobStatusResponse{Status: state.status}
	if state.progress != nil {
		res.Progress = &progressResponse{
			Left:    state.progress.Left,
			Right:   state.progress.Right,
			Total:   state.progress.Total,
			Version: state.progress.Version.String(),
			Outcome: state.progress.Outcome.String(),
		}
	}
	if state.boundary != nil {
		res.LastGood = state.boundary.LastGood.String()
		res.FirstBad = state.boundary.FirstBad.String()
		res.Runs = state.boundary.Runs
	}
	if state.err != nil {
		res.Error = state.err.Error()
	}

	c.JSON(http.StatusOK, res)
}

func (h *httpServer) getVersions(c *gin.Context) {
	versions := h.cfg.Releases.Versions()

	if majorParam := c.Query("major"); majorParam != "" {
		major, err := strconv.ParseUint(majorParam, 10, 64)
		if err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		versions = h.cfg.Releases.VersionsInMajor(major)
	}

	stableOnly := c.Query("stable") == "true"

	out := make([]string, 0, len(versions))
	for _, v := range versions {
		if stableOnly && !v.IsStable() {
			continue
		}
		out = append(out, v.String())
	}
	c.JSON(http.StatusOK, out)
}
