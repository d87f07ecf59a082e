package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"sealpost/internal/api"
	"sealpost/internal/domain"
)

// wireDoc is a document as exchanged with the provider's sync API. Content is
// the sealed body; incoming documents arrive sealed to the user's public key
// instead and are wrapped with the store key when pulled.
type wireDoc struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Rev     int64  `json:"rev"`
	Content []byte `json:"content,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

type changesResponse struct {
	Generation int64     `json:"generation"`
	Docs       []wireDoc `json:"docs"`
}

type pushRequest struct {
	Docs []wireDoc `json:"docs"`
}

type pushResponse struct {
	Generation int64 `json:"generation"`
}

// remote wraps the sync endpoints of one user.
type remote struct {
	api *api.Client
	uid domain.UserID
}

func (r remote) changes(ctx context.Context, since int64) (changesResponse, error) {
	var out changesResponse
	path := fmt.Sprintf("/1/sync/%s/changes?since=%s",
		url.PathEscape(r.uid.String()), strconv.FormatInt(since, 10))
	if err := r.api.GetJSON(ctx, path, &out); err != nil {
		return changesResponse{}, fmt.Errorf("store: pull: %w", err)
	}
	return out, nil
}

func (r remote) push(ctx context.Context, docs []wireDoc) (int64, error) {
	var out pushResponse
	path := fmt.Sprintf("/1/sync/%s/docs", url.PathEscape(r.uid.String()))
	if err := r.api.PostJSON(ctx, path, pushRequest{Docs: docs}, &out); err != nil {
		return 0, fmt.Errorf("store: push: %w", err)
	}
	return out.Generation, nil
}
