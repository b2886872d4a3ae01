package service

import (
	"sort"
)

// Patient is a directory entry surfaces use to pick who a question is
// about.
type Patient struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// demoPatients is the built-in directory used when no external roster is
// wired up. IDs match the seed dataset.
var demoPatients = map[int]string{
	132: "Kate Ann Evans",
	133: "Daniel John Thomas",
	134: "Emily George Walker",
	135: "Daniel Kevin White",
	136: "Daniel David Jackson",
	143: "Alexander Michael Lewis",
	157: "Aiden Nicholas Baker",
	168: "Aiden Juan Green",
	174: "Luna Timothy Flores",
	178: "Luna Stephen Wright",
}

// Patients returns the directory sorted by ID.
func Patients() []Patient {
	out := make([]Patient, 0, len(demoPatients))
	for id, name := range demoPatients {
		out = append(out, Patient{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PatientName resolves an ID against the directory. The second return is
// false for unknown IDs.
func PatientName(id int) (string, bool) {
	name, ok := demoPatients[id]
	return name, ok
}
