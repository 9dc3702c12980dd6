package domain

// ExpertPolicy is the slice of an expert profile the payment service needs:
// whether the expert charges a fee when a booking is cancelled late.
type ExpertPolicy struct {
	ExpertID            int64
	ChargesCancellation bool
}
