package ports

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HTTPHandler interface {
	CreateStream(c *gin.Context)
	GetStream(c *gin.Context)
	ListStreams(c *gin.Context)
	ListSubscribedStreams(c *gin.Context)
	UpdateStream(c *gin.Context)
	EndStream(c *gin.Context)
	DeleteStream(c *gin.Context)
	RecordView(c *gin.Context)
	StopStream(c *gin.Context)
}

type ChatHandler interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
}
