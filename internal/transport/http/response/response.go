package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeInvalidCSV         = 40001
	CodeInvalidLabels      = 40002
	CodeBatchTooLarge      = 40003
	CodeUsernameExists     = 40004
	CodeEmailExists        = 40005
	CodeUnauthorized       = 40100
	CodeInvalidCredentials = 40101
	CodeSessionNotFound    = 40401
	CodeResultNotFound     = 40402
	CodeArtifactNotFound   = 40403
	CodeInternalServer     = 50000
	CodeUpstreamFailed     = 50201
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Row     int         `json:"row,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// ErrorRow reports a client-input error tied to one 1-indexed CSV row.
func ErrorRow(c *gin.Context, httpStatus, code int, message string, row int) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
		Row:     row,
	})
}
