package services

import "github.com/raspadita/backend/internal/models"

// Operation names every privileged action the transfer engine and the
// consoles can request. The policy table below is the single place role
// rules live; endpoints never re-derive them.
type Operation string

const (
	OpMint                Operation = "mint"
	OpPromote             Operation = "promote"
	OpInvitePlayer        Operation = "invite_player"
	OpTransfer            Operation = "transfer"
	OpReadOwnWallet       Operation = "read_own_wallet"
	OpReadCashierBalances Operation = "read_cashier_balances"
	OpPlay                Operation = "play"
)

var policy = map[Operation]map[models.Role]bool{
	OpMint:    {models.RoleAdmin: true},
	OpPromote: {models.RoleAdmin: true},
	OpInvitePlayer: {
		models.RoleAdmin:   true,
		models.RoleCashier: true,
	},
	OpTransfer: {
		models.RoleAdmin:   true,
		models.RoleCashier: true,
	},
	OpReadOwnWallet: {
		models.RoleAdmin:   true,
		models.RoleCashier: true,
		models.RolePlayer:  true,
	},
	OpReadCashierBalances: {models.RoleAdmin: true},
	OpPlay: {
		models.RoleAdmin:   true,
		models.RoleCashier: true,
		models.RolePlayer:  true,
	},
}

// Allowed is the authorization gate: a pure decision over the fixed policy
// table. It never errors; callers map false to a 403.
func Allowed(role models.Role, op Operation) bool {
	return policy[op][role]
}
