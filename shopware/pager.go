package shopware

import (
	"context"
	"errors"
)

const DefaultPageSize = 100

type PageHandler func(*CustomerSearchResponse) error

var ErrStopPaging = errors.New("shopware: stop paging")

// CustomerPages walks the full customer result set page by page until
// the reported total is exhausted. Any page error aborts the walk; an
// incomplete customer set must never look complete to the caller.
func (c *Client) CustomerPages(ctx context.Context, limit int, handler PageHandler) error {
	if handler == nil {
		return nil
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	page := 1
	for {
		resp, err := c.SearchCustomers(ctx, page, limit)
		if err != nil {
			return err
		}
		if err := handler(resp); err != nil {
			if errors.Is(err, ErrStopPaging) {
				return nil
			}
			return err
		}

		if len(resp.Data) == 0 {
			return nil
		}
		if resp.Total > 0 && page*limit >= resp.Total {
			return nil
		}
		if resp.Total <= 0 && len(resp.Data) < limit {
			return nil
		}
		page++
	}
}
