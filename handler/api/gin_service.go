package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/lmdsp/crashpad/common/data/base"
	"github.com/lmdsp/crashpad/common/database"
	"github.com/lmdsp/crashpad/common/metrics"
	"github.com/lmdsp/crashpad/common/snapshot"
	"github.com/lmdsp/crashpad/handler/cfg"
	"github.com/lmdsp/crashpad/handler/service"
)

type BaseReply struct {
	Status string `json:"status"`
}

type ExceptionReply struct {
	Status          string `json:"status"`
	TerminationCode uint32 `json:"termination_code"`
}

// GinHandlerService receives exception notifications from monitored
// processes and runs one capture per request. Gin serves every request on
// its own goroutine, so distinct crashed processes are handled
// concurrently while each capture itself stays synchronous.
type GinHandlerService struct {
	engine   *gin.Engine
	conf     cfg.Config
	db       database.CrashReportDatabase
	handler  *service.CrashReportExceptionHandler
	recorder metrics.Recorder
	open     func(pid int) (snapshot.Process, error)
}

func (m *GinHandlerService) Init() error {
	cfg.GlobalConfigMutex.Lock()
	defer cfg.GlobalConfigMutex.Unlock()

	m.conf = cfg.GlobalConfig
	m.engine = gin.Default()
	m.open = snapshot.OpenProcess

	db, err := database.NewDisk(m.conf.DatabaseDir())
	if err != nil {
		return err
	}
	m.db = db

	m.recorder = metrics.Nop{}
	if m.conf.MonitoringEnable() {
		recorder, err := metrics.NewUdpRecorder("crashes",
			m.conf.UdpAddress(),
			m.conf.FlushBufferSize(),
			time.Duration(m.conf.FlushTimeout())*time.Second)
		if err != nil {
			log.WithError(err).Warning("Can't create metrics recorder")
		} else {
			m.recorder = recorder
		}
	}

	var upload service.UploadNotifier
	if len(m.conf.RabbitServer()) != 0 {
		notifier, err := service.NewRabbitNotifier(m.conf.RabbitServer(),
			m.conf.RabbitQueue(),
			m.newCache())
		if err != nil {
			return err
		}
		notifier.RequeuePending(m.db)
		upload = notifier
	}

	m.handler = service.NewCrashReportExceptionHandler(m.db,
		upload,
		snapshot.NewSystemProvider(),
		m.conf.Annotations(),
		m.conf.Attachments(),
		nil,
		m.recorder)

	m.applyRoutes()
	return nil
}

func (m *GinHandlerService) newCache() base.Cache {
	if len(m.conf.Memcache()) > 0 {
		cache, _ := base.NewMemcache(m.conf.Memcache())
		return cache
	}
	if len(m.conf.RedisAddres()) > 0 {
		cache, _ := base.NewRedis(m.conf.RedisAddres(),
			m.conf.RedisPassword())
		return cache
	}
	return base.NewMemory()
}

func (m *GinHandlerService) Start() error {
	addres := fmt.Sprintf("%s:%d", m.conf.Host(), m.conf.Port())
	log.WithField("address", addres).Info("Run on")
	return m.engine.Run(addres)
}

func (m *GinHandlerService) applyRoutes() {
	m.engine.POST("/exception", m.PostException())
	m.engine.GET("/reports", m.GetReports())
	m.engine.GET("/health", m.GetHealth())
}

func (m *GinHandlerService) setBadRequest(descr string, c *gin.Context) {
	rMsg := &BaseReply{fmt.Sprintf("error: %s", descr)}
	c.JSON(http.StatusBadRequest, rMsg)
}

func (m *GinHandlerService) setServerError(descr string, c *gin.Context) {
	rMsg := &BaseReply{fmt.Sprintf("error: %s", descr)}
	c.JSON(http.StatusInternalServerError, rMsg)
}

// PostException runs one capture synchronously and replies with the code
// the client must terminate the crashed process with.
func (m *GinHandlerService) PostException() gin.HandlerFunc {
	return func(c *gin.Context) {
		var notification service.ExceptionNotification
		if err := c.ShouldBindJSON(&notification); err != nil {
			m.setBadRequest("Invalid exception notification", c)
			return
		}

		if notification.Pid <= 0 {
			m.setBadRequest("Missing parameter 'pid'", c)
			return
		}

		process, err := m.open(notification.Pid)
		if err != nil {
			log.WithError(err).WithField("pid", notification.Pid).
				Error("Can't open crashed process")
			m.setBadRequest("Can't open process", c)
			return
		}

		code := m.handler.HandleException(process,
			notification.ExceptionInformationAddress,
			notification.DebugCriticalSectionAddress)

		c.JSON(http.StatusOK, &ExceptionReply{
			Status:          "done",
			TerminationCode: code,
		})
	}
}

func (m *GinHandlerService) GetReports() gin.HandlerFunc {
	return func(c *gin.Context) {
		reports, status := m.db.GetCompletedReports()
		if status != database.NoError {
			m.setServerError(status.String(), c)
			return
		}
		c.JSON(http.StatusOK, reports)
	}
}

func (m *GinHandlerService) GetHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, &BaseReply{"ok"})
	}
}
