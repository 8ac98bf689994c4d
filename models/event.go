package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/riceworks/millbooks_backend/config"
	"github.com/riceworks/millbooks_backend/utils"
)

const eventModuleName = "models.event"

// emitMillEvent publishes a document lifecycle event after the mutation has
// committed. Publishing is best effort: failures are logged and swallowed,
// the committed mutation never depends on it.
func emitMillEvent(ctx context.Context, millId string, event string, referenceId *int, referenceType LedgerReferenceType, oldObj interface{}, newObj interface{}) {
	if !config.EventsEnabled() {
		return
	}

	logger := config.GetLogger()

	var oldJSON, newJSON []byte
	var err error
	if oldObj != nil {
		if oldJSON, err = json.Marshal(oldObj); err != nil {
			config.LogError(logger, eventModuleName, "emitMillEvent", "marshal old object", event, err)
			return
		}
	}
	if newObj != nil {
		if newJSON, err = json.Marshal(newObj); err != nil {
			config.LogError(logger, eventModuleName, "emitMillEvent", "marshal new object", event, err)
			return
		}
	}

	refId := 0
	if referenceId != nil {
		refId = *referenceId
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	msg := config.MillEvent{
		MillId:        millId,
		OccurredAt:    time.Now(),
		ReferenceId:   refId,
		ReferenceType: string(referenceType),
		Event:         event,
		OldObj:        oldJSON,
		NewObj:        newJSON,
		CorrelationId: correlationId,
	}

	// Detach from the request context so a cancelled request does not abort
	// the publish of an event for work that already committed.
	pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := config.PublishMillEvent(pubCtx, msg); err != nil {
		config.LogError(logger, eventModuleName, "emitMillEvent", "publish", event, err)
	}
}
