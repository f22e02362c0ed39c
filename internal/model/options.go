package model

// Areas served by the collection crews.
var Areas = []string{
	"Colombo",
	"Kandy",
	"Gampaha",
	"Galle",
	"Malabe",
}

// Timeslots are the one-hour collection windows.
var Timeslots = []string{
	"8:00 AM - 9:00 AM",
	"9:00 AM - 10:00 AM",
	"10:00 AM - 11:00 AM",
	"11:00 AM - 12:00 PM",
	"12:00 PM - 1:00 PM",
	"1:00 PM - 2:00 PM",
	"2:00 PM - 3:00 PM",
	"3:00 PM - 4:00 PM",
	"4:00 PM - 5:00 PM",
}

func IsArea(s string) bool {
	return contains(Areas, s)
}

func IsTimeslot(s string) bool {
	return contains(Timeslots, s)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
