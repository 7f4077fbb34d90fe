package diskprov

import (
	"encoding/json"

	"github.com/rekby/gpt"
	uuid "github.com/satori/go.uuid"
)

// GUID - a 16 byte Globally Unique ID, in GPT on-disk byte order.
type GUID [16]byte

// GenGUID - generate a random uuid and return it
func GenGUID() GUID {
	return GUID(uuid.NewV4())
}

func (g GUID) String() string {
	return GUIDToString(g)
}

// MarshalJSON for string output rather than a byte array
func (g GUID) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.String())
}

// StringToGUID - convert a string to a GUID
func StringToGUID(sguid string) (GUID, error) {
	g, err := gpt.StringToGuid(sguid)
	return GUID(g), err
}

// GUIDToString - turn a Guid into a string.
func GUIDToString(bguid GUID) string {
	return gpt.Guid(bguid).String()
}
