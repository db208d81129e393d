package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

const (
	CodeVaultNotFound          = 1001
	CodeInvalidAmount          = 1002
	CodeInvalidLockPeriod      = 1003
	CodeNoEligibleDeposits     = 1004
	CodeUnknownOrSettled       = 1005
	CodeInsufficientNet        = 1006
	CodeGatewayUnauthenticated = 1007
	CodeGatewayRejected        = 1008
	CodeGatewayIndeterminate   = 1009
	CodeSettlementNotFound     = 1010
	CodeSettlementInFlight     = 1011
	CodeInvalidPhone           = 1012
	CodeBalanceInconsistent    = 1013
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
