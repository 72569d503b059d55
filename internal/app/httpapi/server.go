package httpapi

import (
	"fmt"
	"net/http"

	app "github.com/wayfarernet/community_layer/internal/app"
	"github.com/wayfarernet/community_layer/internal/app/auth"
)

// NewAPIHandler assembles the full middleware chain around the API routes:
// CORS, audit trail and bearer authentication. An empty auditPath keeps the
// audit trail in memory only.
func NewAPIHandler(application *app.Application, manager *auth.Manager, tokens []string, auditMax int, auditPath string) (http.Handler, error) {
	var sink auditSink
	if auditPath != "" {
		fileSink, err := newFileAuditSink(auditPath)
		if err != nil {
			return nil, fmt.Errorf("open audit sink: %w", err)
		}
		sink = fileSink
	}

	handler := wrapWithAuth(NewHandlerWithLogin(application, manager), tokens, manager)
	handler = wrapWithAudit(handler, newAuditLog(auditMax, sink))
	return wrapWithCORS(handler), nil
}
