package models

// Booking is a customer's order for a marketplace service. Bookings are
// created by the booking flow outside this engine and only ever change
// through status transitions.
type Booking struct {
	ID           string  `json:"id"`
	ServiceName  string  `json:"service_name"`
	CustomerName string  `json:"customer_name"`
	Status       string  `json:"status"`
	BookingDate  string  `json:"booking_date"`
	TotalPrice   float64 `json:"total_price"`
}
