package ledger

import "context"

// HistoryKey exposes the cache key of the user's transfer history.
func HistoryKey(ctx context.Context, s *Service, userID string) (string, error) {
	return s.historyKey(ctx, userID)
}
