package models

// District names a jurisdiction (Land, Amtsgericht, Bezirk). The set of
// district rows is the namespace of valid document keys: a document key is
// admitted only if its (Amtsgericht, Bezirk) matches a district.
type District struct {
	Land        string `json:"land" db:"land"`
	Amtsgericht string `json:"amtsgericht" db:"amtsgericht"`
	Bezirk      string `json:"bezirk" db:"bezirk"`
}
