package ports

import "context"

// ResetService runs the two password recovery flows: a signed link and a
// numeric one-time code. Both write to the same user record but never share fields.
type ResetService interface {
	RequestReset(ctx context.Context, email string) error
	RedeemReset(ctx context.Context, token, newPassword string) error
	RequestOTP(ctx context.Context, email string) error
	RedeemOTP(ctx context.Context, email, otp, newPassword string) error
}
