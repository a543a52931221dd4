package s3

import "testing"

func TestParseDSN(t *testing.T) {
	cases := []struct {
		in     string
		bucket string
		prefix string
	}{
		{"s3://nyctaxiproject2025", "nyctaxiproject2025", ""},
		{"s3://nyctaxiproject2025/raw/", "nyctaxiproject2025", "raw"},
		{"nyctaxiproject2025/raw/trips", "nyctaxiproject2025", "raw/trips"},
	}
	for _, c := range cases {
		b, err := ParseDSN(c.in, "us-east-1")
		if err != nil {
			t.Fatalf("%v: %v", c.in, err)
		}
		if b.Name != c.bucket || b.Prefix != c.prefix || b.Region != "us-east-1" {
			t.Fatalf("%v: unexpected result %+v", c.in, b)
		}
	}
	if _, err := ParseDSN("gs://bucket", "us-east-1"); err == nil {
		t.Fatal("expected error for wrong scheme")
	}
	if _, err := ParseDSN("s3://bucket", ""); err == nil {
		t.Fatal("expected error for missing region")
	}
}

func TestBucketURL(t *testing.T) {
	b := AwsS3Bucket{Name: "b", Prefix: "/raw/", Region: "r"}
	if b.URL() != "s3://b/raw/" {
		t.Fatalf("unexpected URL %q", b.URL())
	}
	b.Prefix = ""
	if b.URL() != "s3://b/" {
		t.Fatalf("unexpected URL %q", b.URL())
	}
}
