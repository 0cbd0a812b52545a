package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"edihub/internal/domain"
	"edihub/internal/engine"
	"edihub/internal/events"
	"edihub/internal/repo"
	"edihub/internal/routing"
)

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type peekOutput struct {
	Status       int
	MessageID    string `header:"MessageId"`
	DocumentType string `header:"X-Document-Type"`
	ContentType  string `header:"Content-Type"`
	Body         []byte
}

func registerPeek(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "peek",
		Method:      http.MethodGet,
		Path:        "/mailbox/peek/{category}",
		Summary:     "Peek the oldest waiting document",
		Description: "Returns the oldest bundle not yet dequeued as a rendered document. The MessageId header is the id to dequeue with. 204 when the mailbox is empty.",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Category string `path:"category" enum:"None,Aggregations,WholesaleServices"`
		Format   string `query:"format" default:"Json" enum:"Json,Xml,Ebix"`
	}) (*peekOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		category, err := domain.ParseMessageCategory(input.Category)
		if err != nil {
			return nil, handleError(err)
		}
		format, err := domain.ParseDocumentFormat(input.Format)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.Peek(ctx, actor, category, format)
		if err != nil {
			return nil, handleError(err)
		}
		if res == nil {
			return &peekOutput{Status: http.StatusNoContent}, nil
		}
		return &peekOutput{
			Status:       http.StatusOK,
			MessageID:    string(res.MessageID),
			DocumentType: string(res.DocumentType),
			ContentType:  contentType(res.Format),
			Body:         res.Content,
		}, nil
	})
}

func registerDequeue(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "dequeue",
		Method:        http.MethodDelete,
		Path:          "/mailbox/{message_id}",
		Summary:       "Dequeue a peeked document",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		MessageID string `path:"message_id"`
	}) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ok, err := e.Dequeue(ctx, input.MessageID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "no such message in mailbox", map[string]any{"message_id": input.MessageID})
		}
		return &struct{}{}, nil
	})
}

func registerQueueStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "queue-status",
		Method:      http.MethodGet,
		Path:        "/mailbox/status",
		Summary:     "Mailbox status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body QueueStatusResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st, err := e.QueueStatus(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body QueueStatusResponse `json:"body"`
		}{Body: queueStatusResponse(st)}, nil
	})
}

func registerBundleEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "bundle-events",
		Method:      http.MethodGet,
		Path:        "/mailbox/{message_id}/events",
		Summary:     "Lifecycle events of a bundle in the caller's mailbox",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MessageID string `path:"message_id"`
	}) (*struct {
		Body eventList `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		notFound := newAPIError(http.StatusNotFound, "not_found", "no such message in mailbox", map[string]any{"message_id": input.MessageID})
		queue, err := e.Repo.GetQueue(ctx, routing.MailboxOwner(actor))
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFound
		}
		if err != nil {
			return nil, handleError(err)
		}
		b, err := e.Repo.GetBundle(ctx, nil, domain.BundleID(input.MessageID))
		if errors.Is(err, repo.ErrNotFound) || (err == nil && b.QueueID != queue.ID) {
			return nil, notFound
		}
		if err != nil {
			return nil, handleError(err)
		}
		items, err := events.List(ctx, e.DB, events.KindBundle, string(b.ID))
		if err != nil {
			return nil, handleError(err)
		}
		resp := eventList{Items: []EventResponse{}}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body eventList `json:"body"`
		}{Body: resp}, nil
	})
}
