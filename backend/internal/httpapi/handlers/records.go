package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"

	"syncServer/backend/internal/cache"
	"syncServer/backend/internal/engine"
)

// 边界层的字段语法校验（结构完整性校验在引擎里做）
var (
	spaceRegexp = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,127}$`)
	keyRegexp   = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,127}$`)
	actorRegexp = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,127}$`)
)

type Handler struct {
	svc      engine.Service
	watchers cache.WatcherCache
}

func NewHandler(svc engine.Service, watchers cache.WatcherCache) *Handler {
	return &Handler{svc: svc, watchers: watchers}
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/dataset", h.ListSpaces)
	rg.GET("/sequence/:s", h.GetQueueitems)
	rg.POST("/sequence", h.GetMultiQueueitems)
	rg.GET("/value/:s/:k", h.GetValue)
	rg.GET("/change/:s/:k/:v", h.GetVersion)
	rg.GET("/watchers/:s", h.GetWatchers)
	rg.POST("/:s/:k", h.Push(""))
	rg.PUT("/:s/:k", h.Push(engine.KindSet))
	rg.PATCH("/:s/:k", h.Push(engine.KindUpdate))
	rg.DELETE("/:s/:k", h.Push(engine.KindRemove))
}

// pushRequest 入站 wire 形状。
// Removed 是旧协议遗留字段：绑定但从不读取，removed 只由 kind 推导。
// Actor 同样只绑定不读取，身份一律来自中间件。
type pushRequest struct {
	Space          string                 `json:"space"`
	Key            string                 `json:"key"`
	BasedOnVersion *int64                 `json:"basedOnVersion"`
	Actor          string                 `json:"actor"`
	Kind           string                 `json:"kind"`
	Payload        map[string]interface{} `json:"payload"`
	OccurredAt     int64                  `json:"occurredAt"`
	Removed        *bool                  `json:"removed"`
}

func validationError(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"status": engine.StatusValidationError, "message": msg})
}

// Push PUT/PATCH/DELETE 把 kind 固定为 set/update/remove，POST 接受任意 kind
func (h *Handler) Push(forced engine.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req pushRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				validationError(c, "malformed body")
				return
			}
		}

		space := c.Param("s")
		key := c.Param("k")
		actor := c.GetString("actor")

		kind := engine.Kind(req.Kind)
		if forced != "" {
			if req.Kind != "" && kind != forced {
				validationError(c, "kind does not match method")
				return
			}
			kind = forced
		}

		if !spaceRegexp.MatchString(space) {
			validationError(c, "invalid space")
			return
		}
		if !keyRegexp.MatchString(key) {
			validationError(c, "invalid key")
			return
		}
		if !actorRegexp.MatchString(actor) {
			validationError(c, "invalid actor")
			return
		}
		switch kind {
		case engine.KindSet, engine.KindUpdate, engine.KindRemove:
		default:
			validationError(c, "invalid kind")
			return
		}
		if req.BasedOnVersion == nil || *req.BasedOnVersion < 0 {
			validationError(c, "basedOnVersion is required")
			return
		}
		if req.OccurredAt <= 0 {
			validationError(c, "occurredAt is required")
			return
		}

		op := engine.Operation{
			Space:          space,
			Key:            key,
			BasedOnVersion: *req.BasedOnVersion,
			Actor:          actor,
			Kind:           kind,
			Payload:        req.Payload,
			OccurredAt:     req.OccurredAt,
		}

		res, err := h.svc.Push(c.Request.Context(), op)
		if err != nil {
			log.Printf("push failed (space=%s key=%s actor=%s): %v", space, key, actor, err)
			c.JSON(http.StatusInternalServerError, gin.H{"status": "internal"})
			return
		}

		switch res.Status {
		case engine.StatusCreated, engine.StatusUpdated, engine.StatusDuplicate:
			httpStatus := http.StatusOK
			if res.Status == engine.StatusCreated {
				httpStatus = http.StatusCreated
			}
			c.JSON(httpStatus, gin.H{
				"status":    res.Status,
				"seqId":     res.Seq,
				"queueitem": res.Op,
				"jrec":      res.Jrec,
				"sequence":  fmt.Sprintf("/syncit/sequence/%s?seqId=%d", res.Op.Space, res.Seq),
				"change":    fmt.Sprintf("/syncit/change/%s/%s/%d", res.Op.Space, res.Op.Key, res.Op.BasedOnVersion+1),
			})
		case engine.StatusStaleConflict:
			c.JSON(http.StatusConflict, gin.H{"status": res.Status})
		case engine.StatusFutureConflict:
			c.JSON(http.StatusPreconditionFailed, gin.H{"status": res.Status})
		case engine.StatusGone:
			c.JSON(http.StatusGone, gin.H{"status": res.Status})
		case engine.StatusValidationError:
			c.JSON(http.StatusBadRequest, gin.H{"status": res.Status})
		case engine.StatusUnavailable:
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": res.Status})
		default:
			// 引擎不该返回集合之外的状态，返回了就是缺陷，大声报告
			log.Printf("push returned unknown status %q (space=%s key=%s)", res.Status, space, key)
			c.JSON(http.StatusInternalServerError, gin.H{"status": "internal"})
		}
	}
}

func (h *Handler) ListSpaces(c *gin.Context) {
	names, err := h.svc.ListSpaces(c.Request.Context())
	if err != nil {
		h.readError(c, "listSpaces", err)
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "datasets": names})
}

func (h *Handler) GetQueueitems(c *gin.Context) {
	space := c.Param("s")
	if !spaceRegexp.MatchString(space) {
		validationError(c, "invalid space")
		return
	}
	cursor, ok := parseCursor(c.Query("seqId"))
	if !ok {
		validationError(c, "invalid seqId")
		return
	}
	items, next, err := h.svc.GetQueueitems(c.Request.Context(), space, cursor)
	if err != nil {
		h.readError(c, "getQueueitems", err)
		return
	}
	if items == nil {
		items = []engine.Committed{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "queueitems": items, "seqId": next})
}

type multiRequest struct {
	Q []engine.SpaceQuery `json:"q"`
}

// GetMultiQueueitems 批量增量拉取：每个 space 独立返回，查不到的为一个空页
func (h *Handler) GetMultiQueueitems(c *gin.Context) {
	var req multiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "malformed body")
		return
	}
	if len(req.Q) == 0 {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "datasets": gin.H{}})
		return
	}
	for _, q := range req.Q {
		if q.Space != "" && !spaceRegexp.MatchString(q.Space) {
			validationError(c, "invalid space")
			return
		}
	}
	pages, err := h.svc.GetMultiQueueitems(c.Request.Context(), req.Q)
	if err != nil {
		h.readError(c, "getMultiQueueitems", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "datasets": pages})
}

func (h *Handler) GetValue(c *gin.Context) {
	space, key := c.Param("s"), c.Param("k")
	if !spaceRegexp.MatchString(space) || !keyRegexp.MatchString(key) {
		validationError(c, "invalid space or key")
		return
	}
	jrec, err := h.svc.GetValue(c.Request.Context(), space, key)
	if errors.Is(err, engine.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"status": engine.StatusNotFound})
		return
	}
	if err != nil {
		h.readError(c, "getValue", err)
		return
	}
	if jrec.Removed {
		// 数据存在过但已删除：gone，同时带上墓碑视图
		c.JSON(http.StatusGone, gin.H{"status": engine.StatusGone, "jrec": jrec})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "jrec": jrec})
}

func (h *Handler) GetVersion(c *gin.Context) {
	space, key := c.Param("s"), c.Param("k")
	if !spaceRegexp.MatchString(space) || !keyRegexp.MatchString(key) {
		validationError(c, "invalid space or key")
		return
	}
	version, err := strconv.ParseInt(c.Param("v"), 10, 64)
	if err != nil || version <= 0 {
		validationError(c, "invalid version")
		return
	}
	item, err := h.svc.GetVersion(c.Request.Context(), space, key, version)
	if errors.Is(err, engine.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"status": engine.StatusNotFound})
		return
	}
	if err != nil {
		h.readError(c, "getVersion", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "seqId": item.Seq, "queueitem": item.Op})
}

// GetWatchers 当前订阅着某个 Space 的 actor（来自 redis，跨实例）
func (h *Handler) GetWatchers(c *gin.Context) {
	space := c.Param("s")
	if !spaceRegexp.MatchString(space) {
		validationError(c, "invalid space")
		return
	}
	alive, err := h.watchers.GetAliveWatchers(c.Request.Context(), space)
	if err != nil {
		log.Printf("getWatchers failed (space=%s): %v", space, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": engine.StatusUnavailable})
		return
	}
	if alive == nil {
		alive = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "watchers": alive})
}

func (h *Handler) readError(c *gin.Context, op string, err error) {
	if errors.Is(err, engine.ErrUnavailable) {
		log.Printf("%s: store unavailable: %v", op, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": engine.StatusUnavailable})
		return
	}
	log.Printf("%s failed: %v", op, err)
	c.JSON(http.StatusInternalServerError, gin.H{"status": "internal"})
}

func parseCursor(raw string) (int64, bool) {
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
