package querykey

const (
	nsAuth      = "auth"
	nsTables    = "tables"
	nsDocuments = "documents"
	nsAnalytics = "analytics"
	nsStorage   = "storage"
	nsAPI       = "api"
)

var (
	Auth      authKeys
	Tables    tableKeys
	Documents documentKeys
	Analytics analyticsKeys
	Storage   storageKeys
	API       apiKeys
)

type authKeys struct{}

func (authKeys) All() Key     { return Key{nsAuth} }
func (authKeys) User() Key    { return Key{nsAuth, "user"} }
func (authKeys) Session() Key { return Key{nsAuth, "session"} }

type tableKeys struct{}

func (tableKeys) All() Key { return Key{nsTables} }

func (tableKeys) Table(name string) Key { return Key{nsTables, name} }

func (t tableKeys) List(name string, params any) Key {
	return withParams(t.Table(name).Append(markerList), params)
}

func (t tableKeys) Detail(name, id string) Key {
	return t.Table(name).Append(markerDetail, id)
}

func (t tableKeys) Count(name string, params any) Key {
	return withParams(t.Table(name).Append("count"), params)
}

type documentKeys struct{}

func (documentKeys) All() Key { return Key{nsDocuments} }

func (d documentKeys) List(params any) Key {
	return withParams(d.All().Append(markerList), params)
}

func (d documentKeys) Detail(id string) Key {
	return d.All().Append(markerDetail, id)
}

func (d documentKeys) Versions(id string) Key {
	return d.Detail(id).Append("versions")
}

type analyticsKeys struct{}

func (analyticsKeys) All() Key { return Key{nsAnalytics} }

func (a analyticsKeys) Usage(userID string) Key {
	return a.All().Append("usage", userID)
}

func (a analyticsKeys) Vocabulary(userID string) Key {
	return a.All().Append("vocabulary", userID)
}

func (a analyticsKeys) Events(params any) Key {
	return withParams(a.All().Append("events"), params)
}

type storageKeys struct{}

func (storageKeys) All() Key { return Key{nsStorage} }

func (s storageKeys) Bucket(bucket string) Key {
	return s.All().Append(bucket)
}

func (s storageKeys) Files(bucket, prefix string) Key {
	return s.Bucket(bucket).Append(markerList, prefix)
}

func (s storageKeys) File(bucket, path string) Key {
	return s.Bucket(bucket).Append(markerDetail, path)
}

type apiKeys struct{}

func (apiKeys) All() Key { return Key{nsAPI} }

func (a apiKeys) Endpoint(endpoint string, params any) Key {
	return withParams(a.All().Append(endpoint), params)
}
