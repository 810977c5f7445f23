package midea

// ApplianceDetails is the cloud registry entry describing one appliance.
type ApplianceDetails struct {
	ID           string
	SerialNumber string
	Name         string
	Type         string
}
