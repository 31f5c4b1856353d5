package domain

const (
	TxTypeDeposit  = "DEPOSIT"
	TxTypeTransfer = "TRANSFER"

	TxStatusPending = "PENDING"
	TxStatusSuccess = "SUCCESS"
	TxStatusFailed  = "FAILED"

	// Transfer legs share a reference root and carry one of these suffixes.
	TransferDebitSuffix  = "-DEBIT"
	TransferCreditSuffix = "-CREDIT"

	ReferencePrefix = "TXN-"

	WalletNumberLength = 13

	// API key permissions.
	PermissionDeposit  = "deposit"
	PermissionTransfer = "transfer"
	PermissionRead     = "read"

	RoleUser = "user"

	// Provider event and status values.
	EventChargeSuccess      = "charge.success"
	ProviderStatusSuccess   = "success"
	ProviderStatusFailed    = "failed"
	ProviderStatusAbandoned = "abandoned"
)

// Permissions lists every permission an API key may carry.
var Permissions = []string{PermissionDeposit, PermissionTransfer, PermissionRead}
