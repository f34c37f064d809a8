package ledger

import (
	"context"
	"encoding/json"
	"strconv"

	"smartwallet/pkg/cache"

	"go.uber.org/zap"
)

// GetTransferHistory returns the user's transfers, newest first. Results are
// served from the history cache when one is configured. Cache keys carry the
// versions of both accounts; every transfer saves at least one of them, so a
// write from any process moves readers to a fresh key.
func (s *Service) GetTransferHistory(ctx context.Context, userID string) ([]*Transfer, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}

	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var key string
	if s.history != nil {
		if key, err = s.historyKey(ctx, userID); err != nil {
			return nil, err
		}
		data, err := s.history.Get(ctx, key)
		if err == nil {
			var transfers []*Transfer
			if err := json.Unmarshal(data, &transfers); err == nil {
				return transfers, nil
			}
			s.userLogger(userID).Warn("discarding undecodable transfer history", zap.String("key", key))
		} else if !cache.IsNotFound(err) {
			s.userLogger(userID).Debug("history cache unavailable", zap.Error(err))
		}
	}

	transfers, err := s.store.ListTransfers(ctx, TransferFilter{UserID: userID})
	if err != nil {
		return nil, WrapStorage("list transfers", err)
	}
	if transfers == nil {
		transfers = []*Transfer{}
	}

	if s.history != nil {
		if data, err := json.Marshal(transfers); err == nil {
			if err := s.history.Set(ctx, key, data, s.config.HistoryTTL); err != nil {
				s.userLogger(userID).Debug("history cache write failed", zap.Error(err))
			}
		}
	}

	return transfers, nil
}

// historyKey reads the account versions before the transfers are listed, so
// a transfer written in between is cached under a key no later read uses.
// A missing account counts as version 0.
func (s *Service) historyKey(ctx context.Context, userID string) (string, error) {
	versions := make([]string, 0, 2)
	for _, category := range []AccountCategory{Main, Current} {
		account, err := s.store.FindAccount(ctx, userID, category)
		if err != nil {
			return "", WrapStorage("find account", err)
		}
		var version int64
		if account != nil {
			version = account.Version
		}
		versions = append(versions, strconv.FormatInt(version, 10))
	}
	return s.keys.Build("history", userID, versions[0], versions[1]), nil
}
