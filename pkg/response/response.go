package response

import (
	"net/http"

	"bracketflow/internal/consts"
	"bracketflow/pkg/errors"
	"bracketflow/pkg/errors/ecode"

	"github.com/gin-gonic/gin"
)

// 代表响应给客户端的的一个消息结构，包括错误码，错误信息，响应数据
type ApiResponse struct {
	RequestId string      `json:"request_id"` // 请求的唯一ID
	Code      int         `json:"code"`       // 错误码 0表示无错误
	Message   string      `json:"message"`    // 提示信息
	Data      interface{} `json:"data"`
}

// 发送json格式数据
func JSON(c *gin.Context, err error, data interface{}) {
	code, message := errors.DecodeErr(err)
	// 失败返回400
	httpStatus := http.StatusOK
	if code != ecode.Success {
		httpStatus = http.StatusBadRequest
	}
	c.JSON(httpStatus, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      code,
		Message:   message,
		Data:      data,
	})
}

// 签名校验失败，返回401
func Unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      ecode.SignatureErr,
		Message:   message,
	})
}

// 服务未就绪，返回503
func Unavailable(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      ecode.UnavailableErr,
		Message:   message,
	})
}

// 重复提交，返回409
func Conflict(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusConflict, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      ecode.DuplicateErr,
		Message:   message,
	})
}
