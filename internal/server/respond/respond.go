// Package respond writes API responses in the shared envelope. Business
// failures still travel as HTTP 200 with Success=false; non-200 statuses
// are reserved for malformed requests.
package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emberchat/ember/internal/protocol"
)

// OK fills the envelope of rsp and writes it. rsp must be a pointer to a
// response type embedding protocol.Reply.
func OK(c *gin.Context, requestID string, rsp replySetter) {
	rsp.SetResult(requestID, true, "")
	c.JSON(http.StatusOK, rsp)
}

// Fail writes a business decline carrying the reason.
func Fail(c *gin.Context, requestID, errmsg string) {
	c.JSON(http.StatusOK, protocol.Reply{RequestID: requestID, Success: false, ErrMsg: errmsg})
}

// BadRequest rejects a request whose body could not be decoded.
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, protocol.Reply{Success: false, ErrMsg: message})
}

// Unauthorized rejects a request whose session token failed validation.
func Unauthorized(c *gin.Context, requestID string) {
	c.JSON(http.StatusUnauthorized, protocol.Reply{RequestID: requestID, Success: false, ErrMsg: "invalid login session"})
}

type replySetter interface {
	SetResult(requestID string, success bool, errmsg string)
}
