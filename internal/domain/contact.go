package domain

// Contact holds the identity fields shared by vehicles, riders and administrators.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// Location is a WGS84 coordinate in decimal degrees.
type Location struct {
	Lat float64
	Lon float64
}
