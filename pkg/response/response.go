package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess     = 0
	CodeServerError = 500
)

// Business codes, one per service error kind.
const (
	CodeValidation    = 1400
	CodeResourceGone  = 1404
	CodeStateConflict = 1409
	CodeInsufficient  = 1422
	CodeConfiguration = 1500
	CodeTransient     = 1503
)

type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

type PageData struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
}

func requestID(c *gin.Context) string {
	return c.GetString("request_id")
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:      CodeSuccess,
		Message:   "success",
		Data:      data,
		RequestID: requestID(c),
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:      CodeSuccess,
		Message:   "created",
		Data:      data,
		RequestID: requestID(c),
	})
}

func Page(c *gin.Context, items interface{}, total int64, page, size int) {
	Success(c, PageData{Items: items, Total: total, Page: page, Size: size})
}

// Fail writes an error envelope with an explicit HTTP status.
func Fail(c *gin.Context, status, code int, message string, data interface{}) {
	c.AbortWithStatusJSON(status, Response{
		Code:      code,
		Message:   message,
		Data:      data,
		RequestID: requestID(c),
	})
}

func ServerError(c *gin.Context, message string) {
	Fail(c, http.StatusInternalServerError, CodeServerError, message, nil)
}
