package store

import "encoding/json"

// ClientRecord is the persisted shape for one registered runtime in
// clients.json: its internal-network IP plus its own name.
type ClientRecord struct {
	IP   string `json:"ip"`
	Name string `json:"name"`
}

// ClientsStore wraps clients.json, the registry runtime creation adds to
// once the internal-network IP is known and deletion removes from.
type ClientsStore struct {
	file *File
}

func NewClientsStore(path string) *ClientsStore {
	return &ClientsStore{file: NewFile(path)}
}

func (s *ClientsStore) Add(runtimeName, ip string) error {
	return s.file.Save(runtimeName, ClientRecord{IP: ip, Name: runtimeName})
}

func (s *ClientsStore) Get(runtimeName string) (ClientRecord, bool, error) {
	var rec ClientRecord
	ok, err := s.file.Load(runtimeName, &rec)
	return rec, ok, err
}

func (s *ClientsStore) Delete(runtimeName string) error {
	return s.file.Delete(runtimeName)
}

func (s *ClientsStore) LoadAll() (map[string]ClientRecord, error) {
	out := map[string]ClientRecord{}
	err := s.file.LoadAll(func(key string, raw json.RawMessage) error {
		var rec ClientRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		out[key] = rec
		return nil
	})
	return out, err
}
