package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/osvaldoandrade/comfyq/internal/services"
	"github.com/osvaldoandrade/comfyq/pkg/domain"
	"github.com/osvaldoandrade/comfyq/pkg/persistence"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

func init() {
	// Parameters reach the graph as given; seeds above 2^53 must not round.
	binding.EnableDecoderUseNumber = true
}

var errInvalidBody = errors.New("invalid body: expected a JSON object")

// StatusFor maps a pipeline failure to the HTTP status of the versioned routes.
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindUnknownTool:
		return http.StatusNotFound
	case domain.KindMissingParameter, domain.KindUnknownModel:
		return http.StatusBadRequest
	case domain.KindUnboundNode, domain.KindTemplateNotFound, domain.KindInvalidTemplate:
		return http.StatusInternalServerError
	case domain.KindSubmissionRejected, domain.KindOutputNodeMissing, domain.KindNoRecognizedOutput,
		domain.KindNoImageOutput, domain.KindExecutionTimeout, domain.KindTransport:
		return http.StatusBadGateway
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidWebhook), errors.Is(err, errInvalidBody):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	c.JSON(StatusFor(err), domain.ErrorPayload(err))
}

// bindParams reads the request body as a parameter object. An empty body is an
// empty parameter set. Numbers are kept as json.Number.
func bindParams(c *gin.Context) (domain.Params, error) {
	var params domain.Params
	if err := c.ShouldBindJSON(&params); err != nil && !errors.Is(err, io.EOF) {
		return nil, errInvalidBody
	}
	if params == nil {
		params = domain.Params{}
	}
	return params, nil
}

// resultBody is the discriminated success body plus the ledger id, if any.
func resultBody(res domain.ToolResult) gin.H {
	out := gin.H(res.Payload())
	if res.InvocationID != "" {
		out["invocation_id"] = res.InvocationID
	}
	return out
}

func toolName(c *gin.Context, fixed string) string {
	if fixed != "" {
		return fixed
	}
	return c.Param("name")
}
