package nowplaying

import (
	"bytes"
	"encoding/xml"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// minCharsetConfidence is the chardet confidence below which a guess is
// ignored. Short titles routinely score 10 for unrelated multibyte charsets.
const minCharsetConfidence = 50

// statusSuffixes are status page paths users commonly paste as the base URL.
// Longer paths sharing a tail with shorter ones must come first.
var statusSuffixes = []string{
	"/status-json.xsl",
	"/status.xsl",
	"/admin/stats.xml",
	"/admin/stats",
	"/admin/listclients",
	"/admin.cgi",
	"/stats",
	"/7.html",
	"/index.html",
	"/api/nowplaying",
}

// serverRoot strips any known status page path, query and fragment from
// baseURL, leaving the server root without a trailing slash.
func serverRoot(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.RawPath = ""
	p := strings.TrimRight(u.Path, "/")
	lower := strings.ToLower(p)
	for _, suffix := range statusSuffixes {
		if strings.HasSuffix(lower, suffix) {
			p = p[:len(p)-len(suffix)]
			break
		}
	}
	u.Path = strings.TrimRight(p, "/")
	return u.String(), nil
}

// decodeWeak decodes a loosely typed map into out. Servers disagree on
// whether numbers are strings, so numeric fields accept either and garbage
// decodes to zero.
func decodeWeak(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.DecodeHookFuncKind(lenientInt),
		Result:           out,
	})
	if err != nil {
		return err
	}
	return errors.Wrap(dec.Decode(input), "decode fields")
}

func lenientInt(from reflect.Kind, to reflect.Kind, data any) (any, error) {
	if from != reflect.String || to != reflect.Int {
		return data, nil
	}
	s, ok := data.(string)
	if !ok {
		return data, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, nil
	}
	return int(f), nil
}

// xmlNode is a generic element tree. Status documents vary between server
// versions, so fields are read by name rather than by fixed struct.
type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []xmlNode  `xml:",any"`
}

// decodeXML parses a status document. A declared encoding is honoured;
// undeclared legacy bytes go through toUTF8 first.
func decodeXML(body []byte) (xmlNode, error) {
	if !utf8.Valid(body) && !declaresEncoding(body) {
		body = toUTF8(body)
	}
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	var root xmlNode
	if err := dec.Decode(&root); err != nil {
		return xmlNode{}, errors.Wrap(err, "decode xml")
	}
	return root, nil
}

func declaresEncoding(body []byte) bool {
	body = bytes.TrimLeft(body, " \t\r\n\xef\xbb\xbf")
	if !bytes.HasPrefix(body, []byte("<?xml")) {
		return false
	}
	end := bytes.Index(body, []byte("?>"))
	if end < 0 {
		return false
	}
	return bytes.Contains(body[:end], []byte("encoding="))
}

// toUTF8 converts legacy bytes to UTF-8. Old DNAS builds emit whatever
// encoding the source client sent, usually Latin-1, so Windows-1252 is used
// unless chardet is confident and its decoding is clean.
func toUTF8(body []byte) []byte {
	if utf8.Valid(body) {
		return body
	}
	if enc := detectCharset(body); enc != nil {
		decoded, err := enc.NewDecoder().Bytes(body)
		if err == nil && utf8.Valid(decoded) && !bytes.ContainsRune(decoded, utf8.RuneError) {
			return decoded
		}
	}
	decoded, _ := charmap.Windows1252.NewDecoder().Bytes(body)
	return decoded
}

func detectCharset(body []byte) encoding.Encoding {
	guess, err := chardet.NewHtmlDetector().DetectBest(body)
	if err != nil || guess == nil || guess.Confidence < minCharsetConfidence {
		return nil
	}
	enc, err := htmlindex.Get(guess.Charset)
	if err != nil {
		return nil
	}
	return enc
}

func (n xmlNode) name() string {
	return strings.ToLower(n.XMLName.Local)
}

// fields maps attributes and leaf children to their lowercased names.
func (n xmlNode) fields() map[string]any {
	out := make(map[string]any, len(n.Attrs)+len(n.Children))
	for _, attr := range n.Attrs {
		out[strings.ToLower(attr.Name.Local)] = attr.Value
	}
	for _, child := range n.Children {
		if len(child.Children) == 0 {
			out[child.name()] = strings.TrimSpace(child.Text)
		}
	}
	return out
}

func (n xmlNode) children(name string) []xmlNode {
	var out []xmlNode
	for _, child := range n.Children {
		if child.name() == name {
			out = append(out, child)
		}
	}
	return out
}

func (n xmlNode) child(name string) (xmlNode, bool) {
	for _, child := range n.Children {
		if child.name() == name {
			return child, true
		}
	}
	return xmlNode{}, false
}

// listenerKey identifies a listener for unique counting.
type listenerKey struct {
	addr  string
	agent string
}

func countUnique(keys []listenerKey) int {
	seen := make(map[listenerKey]struct{}, len(keys))
	for _, key := range keys {
		seen[key] = struct{}{}
	}
	return len(seen)
}

func intPtr(v int) *int {
	return &v
}

func normalizeMount(mount string) string {
	mount = strings.TrimSpace(mount)
	if mount == "" {
		return ""
	}
	return "/" + strings.TrimLeft(mount, "/")
}
