package loyalty

import "time"

// Operation names reported through OperationLogger.
const (
	OperationAdjust   = "adjust"
	OperationRegister = "register"
	OperationVerify   = "verify"

	OperationStatusOK    = "ok"
	OperationStatusError = "error"
)

const (
	actorSystemValue = "system"

	defaultWelcomeBonusPoints      Points = 100
	defaultPurchaseRateBasisPoints int64  = 100
	defaultLookbackWindow                 = 7 * 24 * time.Hour

	basisPointsDenominator int64 = 10000
	centsPerUnit           int64 = 100

	registrationBonusNote = "registration bonus"

	errorOperationService     = "service"
	errorOperationRegistrar   = "registration"
	errorSubjectAdjustment    = "adjustment"
	errorSubjectBooking       = "booking"
	errorSubjectLedger        = "ledger"
	errorCodeMissingDefault   = "missing_default"
	errorCodeNegativeBalance  = "negative_balance"
	errorCodeBalanceMismatch  = "balance_mismatch"
	errorCodeSequenceMismatch = "sequence_mismatch"
)
