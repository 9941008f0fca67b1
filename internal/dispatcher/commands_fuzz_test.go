// internal/dispatcher/commands_fuzz_test.go
package dispatcher

import (
	"errors"
	"sort"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		env  schemas.Envelope
		want Command
	}{
		{"start", schemas.Envelope{Sender: schemas.SenderUser, Title: schemas.TitleStart, Msg: []byte(`{"experiment_type":"anomaly","dm_type":"policy"}`)}, Start{Experiment: "anomaly", Mode: "policy"}},
		{"stop ignores body", schemas.Envelope{Sender: schemas.SenderUser, Title: schemas.TitleStop, Msg: []byte(`garbage`)}, Stop{}},
		{"process without body", schemas.Envelope{Sender: schemas.SenderClassification, Title: schemas.TitleProcess}, Process{}},
		{"process flags", schemas.Envelope{Sender: schemas.SenderClassification, Title: schemas.TitleProcess, Msg: []byte(`{"anomaly_0":true,"anomaly_2":true}`)}, Process{Faults: [schemas.NumConveyors]bool{true, false, true}}},
		{"classified", schemas.Envelope{Sender: schemas.SenderClassification, Title: schemas.TitleClassificationProcessed, Msg: []byte(`{"item_type":4,"stored":1}`)}, Classified{ItemType: schemas.ItemBlue, Conveyor: schemas.ConveyorMiddle}},
		{"classification poll without item", schemas.Envelope{Sender: schemas.SenderClassification, Title: schemas.TitleSASCheck}, ClassificationCheck{}},
		{"repository processed", schemas.Envelope{Sender: schemas.SenderRepository, Title: schemas.TitleOrderProcessed, Msg: []byte(`{"stored":2}`)}, RepositoryProcessed{Conveyor: schemas.ConveyorRight}},
		{"repository poll", schemas.Envelope{Sender: schemas.SenderRepository, Title: schemas.TitleSASCheck, Msg: []byte(`{"stored":0}`)}, RepositoryCheck{Conveyor: schemas.ConveyorLeft}},
		{"anomaly occurred", schemas.Envelope{Sender: schemas.SenderRepository, Title: schemas.TitleAnomalyOccurred, Msg: []byte(`{"stored":0}`)}, AnomalyOccurred{Conveyor: schemas.ConveyorLeft}},
		{"anomaly solved", schemas.Envelope{Sender: schemas.SenderRepository, Title: schemas.TitleAnomalySolved, Msg: []byte(`{"stored":2}`)}, AnomalySolved{Conveyor: schemas.ConveyorRight}},
		{"shipped", schemas.Envelope{Sender: schemas.SenderShipment, Title: schemas.TitleOrderProcessed, Msg: []byte(`{"item_type":2,"dest":0}`)}, Shipped{ItemType: schemas.ItemWhite, Destination: 0}},
		{"shipment poll", schemas.Envelope{Sender: schemas.SenderShipment, Title: schemas.TitleSASCheck, Msg: []byte(`{"item_type":3}`)}, ShipmentCheck{ItemType: schemas.ItemYellow}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// -- Fuzz Testing --

// FuzzDecode feeds arbitrary envelopes through the decoder. Every input must
// either decode into an in-range command or fail with a protocol error.
func FuzzDecode(f *testing.F) {
	f.Add(int(schemas.SenderRepository), schemas.TitleOrderProcessed, []byte(`{"stored":1}`))
	f.Add(int(schemas.SenderShipment), schemas.TitleOrderProcessed, []byte(`{"item_type":1,"dest":2}`))
	f.Add(int(schemas.SenderClassification), schemas.TitleProcess, []byte(`{"anomaly_1":true}`))
	f.Add(int(schemas.SenderUser), schemas.TitleStart, []byte(`{"experiment_type":"generated","dm_type":"random"}`))
	f.Add(7, "Item Stored", []byte(`null`))

	f.Fuzz(func(t *testing.T, sender int, title string, msg []byte) {
		cmd, err := Decode(schemas.Envelope{Sender: schemas.Sender(sender), Title: title, Msg: msg})
		if err != nil {
			if !errors.Is(err, ErrUnknownCommand) && !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("unexpected error class: %v", err)
			}
			return
		}
		assertInRange(t, cmd)
	})
}

// FuzzDecode_Structured builds whole envelopes and payloads from the input.
func FuzzDecode_Structured(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		var payload struct {
			ItemType    int  `json:"item_type"`
			Conveyor    int  `json:"stored"`
			Destination int  `json:"dest"`
			Anomaly0    bool `json:"anomaly_0"`
		}
		if err := consumer.GenerateStruct(&payload); err != nil {
			return
		}
		pick, err := consumer.GetInt()
		if err != nil {
			return
		}
		keys := make([]commandKey, 0, len(decoders))
		for k := range decoders {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].sender != keys[j].sender {
				return keys[i].sender < keys[j].sender
			}
			return keys[i].title < keys[j].title
		})
		key := keys[uint(pick)%uint(len(keys))]
		raw, err := consumer.GetBytes()
		if err != nil {
			raw = nil
		}

		for _, msg := range [][]byte{raw, mustJSON(t, payload)} {
			cmd, err := Decode(schemas.Envelope{Sender: key.sender, Title: key.title, Msg: msg})
			if err != nil {
				if errors.Is(err, ErrUnknownCommand) {
					t.Fatalf("known command rejected as unknown: %v", err)
				}
				if !errors.Is(err, ErrMalformedPayload) {
					t.Fatalf("unexpected error class: %v", err)
				}
				continue
			}
			assertInRange(t, cmd)
		}
	})
}

func assertInRange(t *testing.T, cmd Command) {
	t.Helper()
	switch c := cmd.(type) {
	case Classified:
		if !c.ItemType.Valid() || !c.Conveyor.Valid() {
			t.Fatalf("out-of-range command decoded: %+v", c)
		}
	case RepositoryProcessed:
		if !c.Conveyor.Valid() {
			t.Fatalf("out-of-range command decoded: %+v", c)
		}
	case RepositoryCheck:
		if !c.Conveyor.Valid() {
			t.Fatalf("out-of-range command decoded: %+v", c)
		}
	case AnomalyOccurred:
		if !c.Conveyor.Valid() {
			t.Fatalf("out-of-range command decoded: %+v", c)
		}
	case AnomalySolved:
		if !c.Conveyor.Valid() {
			t.Fatalf("out-of-range command decoded: %+v", c)
		}
	case Shipped:
		if !c.ItemType.Valid() || !c.Destination.Valid() {
			t.Fatalf("out-of-range command decoded: %+v", c)
		}
	case ClassificationCheck:
		if c.ItemType != 0 && !c.ItemType.Valid() {
			t.Fatalf("out-of-range command decoded: %+v", c)
		}
	case ShipmentCheck:
		if c.ItemType != 0 && !c.ItemType.Valid() {
			t.Fatalf("out-of-range command decoded: %+v", c)
		}
	case Start:
		if c.Experiment == "" || c.Mode == "" {
			t.Fatalf("start decoded without parameters: %+v", c)
		}
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
