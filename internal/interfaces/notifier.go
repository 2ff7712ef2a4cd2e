package interfaces

import (
	"context"

	"github.com/ternarybob/dronebutler/internal/models"
	"github.com/ternarybob/dronebutler/internal/rules"
)

// Notifier is the abstract sink that receives matched-rule descriptions
// for a user. Implementations decide the transport; a failing notifier
// surfaces the error to the processor, which logs and continues.
type Notifier interface {
	Notify(ctx context.Context, user *models.User, analysisCtx *models.AnalysisContext, matches []*rules.MatchedRule) error
}
