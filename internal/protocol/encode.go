package protocol

import "fmt"

// EncodedLen returns the exact wire size of msg.
func EncodedLen(msg Message) (int, error) {
	switch m := msg.(type) {
	case SendColor:
		return 1 + len(m.Color), nil
	case SetHost, ParticleTrigger, SpawnObjectRequest:
		return 1, nil
	case SendMovement:
		if err := checkName(m.Name); err != nil {
			return 0, err
		}
		return movementFixedLen + len(m.Name), nil
	case SpawnObject:
		if err := checkName(m.Name); err != nil {
			return 0, err
		}
		return spawnFixedLen + len(m.Name), nil
	case nil:
		return 0, ErrNilMessage
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnknownKind, msg)
	}
}

// Encode returns a freshly allocated buffer holding msg in wire format.
func Encode(msg Message) ([]byte, error) {
	n, err := EncodedLen(msg)
	if err != nil {
		return nil, err
	}
	return AppendEncode(make([]byte, 0, n), msg)
}

// AppendEncode appends msg in wire format to dst.
func AppendEncode(dst []byte, msg Message) ([]byte, error) {
	if _, err := EncodedLen(msg); err != nil {
		return dst, err
	}
	dst = append(dst, byte(msg.Kind()))
	switch m := msg.(type) {
	case SendColor:
		dst = append(dst, m.Color...)
	case SendMovement:
		dst = appendName(dst, m.Name)
		dst = appendVec3(dst, m.Position)
		dst = appendQuat(dst, m.Rotation)
	case SpawnObject:
		dst = appendName(dst, m.Name)
		dst = appendVec3(dst, m.Position)
	}
	return dst, nil
}
