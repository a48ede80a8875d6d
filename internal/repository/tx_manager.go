package repository

import "context"

// 同じトランザクションに束縛されたrepo一式
type TxRepos interface {
	Orders() OrderRepository
	OrderItems() OrderItemRepository
	CartItems() CartItemRepository
	Products() ProductRepository
}

// fnがnilを返せばcommit、errorならrollbackしてそのerrorを返す
type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(r TxRepos) error) error
}
