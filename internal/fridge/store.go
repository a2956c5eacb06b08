package fridge

import "encoding/json"

// IsDuplicate reports whether candidate has the same fingerprint as any image
// in existing.
func IsDuplicate(candidate Image, existing []Image) bool {
	for _, img := range existing {
		if img.Fingerprint == candidate.Fingerprint {
			return true
		}
	}
	return false
}

// Store is the ordered collection of a session's images. It is a value: Add
// and Clear return a new Store and never modify the receiver.
type Store struct {
	images []Image
}

// NewStore builds a store from images, dropping duplicates.
func NewStore(images ...Image) Store {
	var s Store
	for _, img := range images {
		s, _ = s.Add(img)
	}
	return s
}

// Add appends img unless it duplicates an image already in the store. The
// boolean reports whether it was added.
func (s Store) Add(img Image) (Store, bool) {
	if IsDuplicate(img, s.images) {
		return s, false
	}
	next := make([]Image, len(s.images), len(s.images)+1)
	copy(next, s.images)
	return Store{images: append(next, img)}, true
}

// Clear returns an empty store.
func (s Store) Clear() Store {
	return Store{}
}

// Len returns the number of stored images.
func (s Store) Len() int {
	return len(s.images)
}

// Empty reports whether the store holds no images.
func (s Store) Empty() bool {
	return len(s.images) == 0
}

// At returns the i-th image (zero-based).
func (s Store) At(i int) (Image, bool) {
	if i < 0 || i >= len(s.images) {
		return Image{}, false
	}
	return s.images[i], true
}

// Images returns a copy of the stored images in insertion order.
func (s Store) Images() []Image {
	out := make([]Image, len(s.images))
	copy(out, s.images)
	return out
}

// MarshalJSON implements json.Marshaler.
func (s Store) MarshalJSON() ([]byte, error) {
	if s.images == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.images)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Store) UnmarshalJSON(data []byte) error {
	var images []Image
	if err := json.Unmarshal(data, &images); err != nil {
		return err
	}
	*s = NewStore(images...)
	return nil
}
