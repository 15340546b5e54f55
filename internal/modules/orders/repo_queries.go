package orders

import (
	"context"
	"strings"
)

type ListByUserParams struct {
	UserID    string
	UserEmail string // verified email; guest orders placed with it are included
	Page      int
	PageSize  int
	Status    string // optional filter
}

type ListByUserResult struct {
	Items []ListByUserItem
	Total int64
}

type ListByUserItem struct {
	Order Order
	Count int
}

func (r *Repo) ListByUser(ctx context.Context, in ListByUserParams) (ListByUserResult, error) {
	page, size := pageBounds(in.Page, in.PageSize, 20)

	q := r.db.WithContext(ctx).Model(&Order{})
	if email := strings.TrimSpace(in.UserEmail); email != "" {
		q = q.Where("user_id = ? OR (user_id IS NULL AND email = ?)", in.UserID, email)
	} else {
		q = q.Where("user_id = ?", in.UserID)
	}
	if status := strings.TrimSpace(in.Status); status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return ListByUserResult{}, err
	}

	var list []Order
	if err := q.Order("created_at DESC").
		Limit(size).
		Offset((page - 1) * size).
		Find(&list).Error; err != nil {
		return ListByUserResult{}, err
	}

	counts, err := r.itemCounts(ctx, list)
	if err != nil {
		return ListByUserResult{}, err
	}

	items := make([]ListByUserItem, len(list))
	for i, o := range list {
		items[i] = ListByUserItem{Order: o, Count: counts[o.ID]}
	}
	return ListByUserResult{Items: items, Total: total}, nil
}

type AdminListParams struct {
	Q        string
	Status   string
	Page     int
	PageSize int
}

type AdminListResult struct {
	Items []Order
	Total int64
}

func (r *Repo) AdminList(ctx context.Context, in AdminListParams) (AdminListResult, error) {
	page, size := pageBounds(in.Page, in.PageSize, 30)

	base := r.db.WithContext(ctx).Model(&Order{})
	if status := strings.TrimSpace(in.Status); status != "" {
		base = base.Where("status = ?", status)
	}
	if q := strings.TrimSpace(in.Q); q != "" {
		like := "%" + q + "%"
		base = base.Where("(id LIKE ? OR email LIKE ?)", like, like)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return AdminListResult{}, err
	}

	var items []Order
	if err := base.Order("created_at DESC").
		Limit(size).
		Offset((page - 1) * size).
		Find(&items).Error; err != nil {
		return AdminListResult{}, err
	}
	return AdminListResult{Items: items, Total: total}, nil
}

// Events returns the audit trail of an order, newest first.
func (r *Repo) Events(ctx context.Context, orderID string) ([]OrderEvent, error) {
	var ev []OrderEvent
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&ev, "order_id = ?", orderID).Error
	return ev, err
}

func (r *Repo) itemCounts(ctx context.Context, list []Order) (map[string]int, error) {
	out := make(map[string]int, len(list))
	if len(list) == 0 {
		return out, nil
	}
	ids := make([]string, len(list))
	for i, o := range list {
		ids[i] = o.ID
	}

	var rows []struct {
		OrderID string
		N       int
	}
	if err := r.db.WithContext(ctx).Model(&OrderItem{}).
		Select("order_id, COUNT(*) AS n").
		Where("order_id IN ?", ids).
		Group("order_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.OrderID] = row.N
	}
	return out, nil
}

func pageBounds(page, size, def int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = def
	}
	return page, size
}
