package outputs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/config"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/metrics"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/models"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/vitals"
)

// ErrBadCommunity is returned for requests carrying the wrong community string
var ErrBadCommunity = errors.New("invalid SNMP community")

// SNMPOutput provides an SNMP agent for polling per-page vitals
type SNMPOutput struct {
	config  *config.SNMPConfig
	baseOID string
	cache   *metrics.EventCache
	started time.Time

	mu    sync.RWMutex
	stats map[statsKey]*vitalStats

	done chan struct{}
	wg   sync.WaitGroup

	snmpConn   *net.UDPConn
	httpServer *http.Server

	trapDestinations []*gosnmp.GoSNMP
}

type statsKey struct {
	Page   string
	Signal string
}

type vitalStats struct {
	Count      int64
	PoorCount  int64
	LastValue  float64
	AvgValue   float64
	LastRating string
	LastSeen   time.Time
}

// OID layout below the enterprise OID:
//
//	.1.<n>.0        general statistics
//	.2.<row>.<col>  per page and signal statistics, rows sorted by page then signal
//	.3.<row>.<col>  recent readings, oldest first
//
// CLS values are exported in thousandths so every value fits a Gauge32.
const (
	generalBranch = ".1"
	statsBranch   = ".2"
	recentBranch  = ".3"

	statsColumns  = 8
	recentColumns = 5

	sysUpTimeOID   = ".1.3.6.1.2.1.1.3.0"
	snmpTrapOIDOID = ".1.3.6.1.6.3.1.1.4.1.0"
	poorTrapSuffix = ".0.1"
)

// NewSNMPOutput creates a new SNMP agent backed by the shared event cache
func NewSNMPOutput(cfg *config.SNMPConfig, cache *metrics.EventCache) (*SNMPOutput, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	s := newSNMPAgent(cfg, cache)

	if err := s.initializeTrapDestinations(); err != nil {
		log.Printf("Warning: Failed to initialize trap destinations: %v", err)
	}

	if err := s.startSNMPServer(); err != nil {
		return nil, fmt.Errorf("failed to start SNMP server: %w", err)
	}

	// JSON view of the same data, for debugging
	if err := s.startHTTPServer(); err != nil {
		log.Printf("Warning: Failed to start HTTP API server: %v", err)
	}

	log.Printf("SNMP agent listening on %s (community: %s)", s.snmpConn.LocalAddr(), cfg.Community)
	log.Printf("Enterprise OID: %s", s.baseOID)

	return s, nil
}

func newSNMPAgent(cfg *config.SNMPConfig, cache *metrics.EventCache) *SNMPOutput {
	if cache == nil {
		cache = metrics.NewEventCache(100)
	}
	base := cfg.EnterpriseOID
	if base == "" {
		base = ".1.3.6.1.4.1.99999"
	}
	if !strings.HasPrefix(base, ".") {
		base = "." + base
	}
	return &SNMPOutput{
		config:  cfg,
		baseOID: base,
		cache:   cache,
		started: time.Now(),
		stats:   make(map[statsKey]*vitalStats),
		done:    make(chan struct{}),
	}
}

// initializeTrapDestinations connects a v2c trap sender per configured target
func (s *SNMPOutput) initializeTrapDestinations() error {
	var errs []error
	for _, target := range s.config.TrapTargets {
		host, portStr, err := net.SplitHostPort(target)
		if err != nil {
			errs = append(errs, fmt.Errorf("trap target %q: %w", target, err))
			continue
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			errs = append(errs, fmt.Errorf("trap target %q: invalid port", target))
			continue
		}

		dest := &gosnmp.GoSNMP{
			Target:    host,
			Port:      uint16(port),
			Community: s.config.Community,
			Version:   gosnmp.Version2c,
			Timeout:   2 * time.Second,
			Retries:   1,
		}
		if err := dest.Connect(); err != nil {
			errs = append(errs, fmt.Errorf("trap target %q: %w", target, err))
			continue
		}
		s.trapDestinations = append(s.trapDestinations, dest)
	}
	return errors.Join(errs...)
}

// startSNMPServer starts the SNMP UDP server
func (s *SNMPOutput) startSNMPServer() error {
	addr := fmt.Sprintf("%s:%d", s.config.ListenAddress, s.config.Port)
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}
	s.snmpConn = conn

	s.wg.Add(1)
	go s.handleSNMPPackets()

	return nil
}

// handleSNMPPackets reads requests until Close
func (s *SNMPOutput) handleSNMPPackets() {
	defer s.wg.Done()
	defer s.snmpConn.Close()

	buffer := make([]byte, 65535)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		// Read deadline lets the loop notice done
		s.snmpConn.SetReadDeadline(time.Now().Add(1 * time.Second))

		n, remoteAddr, err := s.snmpConn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			log.Printf("SNMP read error: %v", err)
			continue
		}

		data := make([]byte, n)
		copy(data, buffer[:n])
		go s.processSNMPPacket(data, remoteAddr)
	}
}

// processSNMPPacket answers a single request
func (s *SNMPOutput) processSNMPPacket(data []byte, remoteAddr *net.UDPAddr) {
	response, err := s.handlePacket(data)
	if err != nil {
		log.Printf("SNMP request from %s rejected: %v", remoteAddr, err)
		return
	}

	responseData, err := response.MarshalMsg()
	if err != nil {
		log.Printf("Failed to marshal SNMP response: %v", err)
		return
	}

	if _, err := s.snmpConn.WriteToUDP(responseData, remoteAddr); err != nil {
		log.Printf("Failed to send SNMP response: %v", err)
	}
}

// handlePacket decodes a request and builds its response
func (s *SNMPOutput) handlePacket(data []byte) (*gosnmp.SnmpPacket, error) {
	decoder := &gosnmp.GoSNMP{Community: s.config.Community, Version: gosnmp.Version2c}
	packet, err := decoder.SnmpDecodePacket(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode SNMP packet: %w", err)
	}

	if packet.Community != s.config.Community {
		return nil, ErrBadCommunity
	}

	response := &gosnmp.SnmpPacket{
		Version:   packet.Version,
		Community: packet.Community,
		PDUType:   gosnmp.GetResponse,
		RequestID: packet.RequestID,
	}

	switch packet.PDUType {
	case gosnmp.GetRequest:
		for _, v := range packet.Variables {
			response.Variables = append(response.Variables, s.getOIDValue(v.Name))
		}
	case gosnmp.GetNextRequest:
		oids := s.getAllOIDs()
		for _, v := range packet.Variables {
			response.Variables = append(response.Variables, s.getNextOID(oids, v.Name))
		}
	case gosnmp.GetBulkRequest:
		response.Variables = s.getBulk(s.getAllOIDs(), packet)
	default:
		return nil, fmt.Errorf("unsupported SNMP PDU type: %v", packet.PDUType)
	}

	return response, nil
}

// getBulk answers the first NonRepeaters varbinds with a single GETNEXT and
// walks up to MaxRepetitions successors of each remaining one
func (s *SNMPOutput) getBulk(oids []string, packet *gosnmp.SnmpPacket) []gosnmp.SnmpPDU {
	maxReps := packet.MaxRepetitions
	if maxReps == 0 {
		maxReps = 10
	}
	nonRepeaters := min(int(packet.NonRepeaters), len(packet.Variables))

	var vars []gosnmp.SnmpPDU
	for _, v := range packet.Variables[:nonRepeaters] {
		vars = append(vars, s.getNextOID(oids, v.Name))
	}
	for _, v := range packet.Variables[nonRepeaters:] {
		current := v.Name
		for i := uint32(0); i < maxReps; i++ {
			pdu := s.getNextOID(oids, current)
			if pdu.Type == gosnmp.EndOfMibView {
				break
			}
			vars = append(vars, pdu)
			current = pdu.Name
		}
	}
	return vars
}

// getOIDValue retrieves the value for a specific OID
func (s *SNMPOutput) getOIDValue(oid string) gosnmp.SnmpPDU {
	if !strings.HasPrefix(oid, ".") {
		oid = "." + oid
	}
	rel := strings.TrimPrefix(oid, s.baseOID)
	if rel == oid {
		return noSuchInstance(oid)
	}

	switch {
	case strings.HasPrefix(rel, generalBranch+"."):
		return s.getGeneralOID(oid, strings.TrimPrefix(rel, generalBranch+"."))
	case strings.HasPrefix(rel, statsBranch+"."):
		row, col, ok := parseRowColumn(strings.TrimPrefix(rel, statsBranch+"."))
		if !ok {
			return noSuchInstance(oid)
		}
		return s.getStatsOID(oid, row, col)
	case strings.HasPrefix(rel, recentBranch+"."):
		row, col, ok := parseRowColumn(strings.TrimPrefix(rel, recentBranch+"."))
		if !ok {
			return noSuchInstance(oid)
		}
		return s.getRecentOID(oid, row, col)
	}
	return noSuchInstance(oid)
}

func (s *SNMPOutput) getGeneralOID(oid, rel string) gosnmp.SnmpPDU {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch rel {
	case "1.0": // cached readings
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Gauge32, Value: uint32(s.cache.Count())}
	case "2.0": // cache capacity
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Gauge32, Value: uint32(s.cache.MaxSize())}
	case "3.0": // monitored pages
		pages := make(map[string]struct{})
		for key := range s.stats {
			pages[key.Page] = struct{}{}
		}
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Gauge32, Value: uint32(len(pages))}
	case "4.0": // total readings
		var total int64
		for _, st := range s.stats {
			total += st.Count
		}
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Counter64, Value: uint64(total)}
	case "5.0": // poor readings
		var total int64
		for _, st := range s.stats {
			total += st.PoorCount
		}
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Counter64, Value: uint64(total)}
	}
	return noSuchInstance(oid)
}

func (s *SNMPOutput) getStatsOID(oid string, row, col int) gosnmp.SnmpPDU {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.sortedKeys()
	if row < 1 || row > len(keys) {
		return noSuchInstance(oid)
	}
	key := keys[row-1]
	st := s.stats[key]

	switch col {
	case 1:
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.OctetString, Value: key.Page}
	case 2:
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.OctetString, Value: key.Signal}
	case 3:
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Counter64, Value: uint64(st.Count)}
	case 4:
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Gauge32, Value: gaugeValue(key.Signal, st.LastValue)}
	case 5:
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Gauge32, Value: gaugeValue(key.Signal, st.AvgValue)}
	case 6:
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Counter64, Value: uint64(st.PoorCount)}
	case 7:
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.OctetString, Value: st.LastRating}
	case 8:
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Counter64, Value: uint64(st.LastSeen.Unix())}
	}
	return noSuchInstance(oid)
}

func (s *SNMPOutput) getRecentOID(oid string, row, col int) gosnmp.SnmpPDU {
	events := s.cache.GetLast(s.cache.MaxSize())
	if row < 1 || row > len(events) {
		return noSuchInstance(oid)
	}
	event := events[row-1]

	switch col {
	case 1:
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.OctetString, Value: pageLabel(event.Page)}
	case 2:
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.OctetString, Value: event.Vital.Signal}
	case 3:
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Gauge32, Value: gaugeValue(event.Vital.Signal, event.Vital.Value)}
	case 4:
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.OctetString, Value: event.Vital.Rating}
	case 5:
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Counter64, Value: uint64(event.Timestamp.Unix())}
	}
	return noSuchInstance(oid)
}

// getNextOID finds the first OID after oid in the sorted list
func (s *SNMPOutput) getNextOID(oids []string, oid string) gosnmp.SnmpPDU {
	i := sort.Search(len(oids), func(i int) bool {
		return oidCompare(oids[i], oid) > 0
	})
	if i < len(oids) {
		return s.getOIDValue(oids[i])
	}
	return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.EndOfMibView}
}

// getAllOIDs returns all available OIDs in sorted order
func (s *SNMPOutput) getAllOIDs() []string {
	s.mu.RLock()
	rows := len(s.stats)
	s.mu.RUnlock()

	oids := make([]string, 0, 5+rows*statsColumns)
	for n := 1; n <= 5; n++ {
		oids = append(oids, fmt.Sprintf("%s%s.%d.0", s.baseOID, generalBranch, n))
	}
	for row := 1; row <= rows; row++ {
		for col := 1; col <= statsColumns; col++ {
			oids = append(oids, fmt.Sprintf("%s%s.%d.%d", s.baseOID, statsBranch, row, col))
		}
	}
	for row := 1; row <= s.cache.Count(); row++ {
		for col := 1; col <= recentColumns; col++ {
			oids = append(oids, fmt.Sprintf("%s%s.%d.%d", s.baseOID, recentBranch, row, col))
		}
	}

	sortOIDs(oids)
	return oids
}

// sortedKeys must be called with mu held
func (s *SNMPOutput) sortedKeys() []statsKey {
	keys := make([]statsKey, 0, len(s.stats))
	for key := range s.stats {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Page != keys[j].Page {
			return keys[i].Page < keys[j].Page
		}
		return keys[i].Signal < keys[j].Signal
	})
	return keys
}

// Write caches the event for SNMP queries and updates statistics
func (s *SNMPOutput) Write(event *models.VitalEvent) error {
	if s == nil {
		return nil
	}

	s.cache.Add(event)

	key := statsKey{Page: pageLabel(event.Page), Signal: event.Vital.Signal}

	s.mu.Lock()
	st, exists := s.stats[key]
	if !exists {
		st = &vitalStats{}
		s.stats[key] = st
	}
	st.Count++
	st.LastValue = event.Vital.Value
	st.LastRating = event.Vital.Rating
	st.LastSeen = event.Timestamp
	st.AvgValue += (event.Vital.Value - st.AvgValue) / float64(st.Count)
	if event.Vital.Rating == string(vitals.RatingPoor) {
		st.PoorCount++
	}
	s.mu.Unlock()

	if event.Vital.Rating == string(vitals.RatingPoor) && len(s.trapDestinations) > 0 {
		go s.sendTrap(s.poorReadingTrap(event))
	}

	return nil
}

// poorReadingTrap builds the v2c notification for a poor reading
func (s *SNMPOutput) poorReadingTrap(event *models.VitalEvent) gosnmp.SnmpTrap {
	uptime := uint32(time.Since(s.started) / (10 * time.Millisecond))
	trapOID := s.baseOID + poorTrapSuffix

	return gosnmp.SnmpTrap{
		Variables: []gosnmp.SnmpPDU{
			{Name: sysUpTimeOID, Type: gosnmp.TimeTicks, Value: uptime},
			{Name: snmpTrapOIDOID, Type: gosnmp.ObjectIdentifier, Value: trapOID},
			{Name: trapOID + ".1", Type: gosnmp.OctetString, Value: pageLabel(event.Page)},
			{Name: trapOID + ".2", Type: gosnmp.OctetString, Value: event.Vital.Signal},
			{Name: trapOID + ".3", Type: gosnmp.Gauge32, Value: gaugeValue(event.Vital.Signal, event.Vital.Value)},
			{Name: trapOID + ".4", Type: gosnmp.OctetString, Value: event.Page.URL},
		},
	}
}

func (s *SNMPOutput) sendTrap(trap gosnmp.SnmpTrap) {
	for _, dest := range s.trapDestinations {
		if _, err := dest.SendTrap(trap); err != nil {
			log.Printf("Failed to send SNMP trap to %s: %v", dest.Target, err)
		}
	}
}

// startHTTPServer serves the agent data as JSON on the port after the SNMP port
func (s *SNMPOutput) startHTTPServer() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/snmp/data", s.handleSNMPDataRequest)
	mux.HandleFunc("/snmp/oids", s.handleOIDListRequest)

	addr := fmt.Sprintf("%s:%d", s.config.ListenAddress, s.config.Port+1)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("SNMP HTTP server error: %v", err)
		}
	}()

	return nil
}

func (s *SNMPOutput) handleSNMPDataRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.GetSNMPData()); err != nil {
		log.Printf("Error encoding SNMP data: %v", err)
	}
}

func (s *SNMPOutput) handleOIDListRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.getAllOIDs()); err != nil {
		log.Printf("Error encoding OID list: %v", err)
	}
}

// GetSNMPData returns the agent state keyed by page then signal
func (s *SNMPOutput) GetSNMPData() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pages := make(map[string]map[string]any)
	for key, st := range s.stats {
		if pages[key.Page] == nil {
			pages[key.Page] = make(map[string]any)
		}
		pages[key.Page][key.Signal] = map[string]any{
			"count":       st.Count,
			"poor_count":  st.PoorCount,
			"last_value":  st.LastValue,
			"avg_value":   st.AvgValue,
			"last_rating": st.LastRating,
			"last_seen":   st.LastSeen.Unix(),
		}
	}

	return map[string]any{
		"cache_size":     s.cache.Count(),
		"cache_max_size": s.cache.MaxSize(),
		"pages":          pages,
	}
}

// Name returns the output module name
func (s *SNMPOutput) Name() string {
	return "snmp"
}

// Close shuts down the SNMP agent
func (s *SNMPOutput) Close() error {
	if s == nil {
		return nil
	}

	log.Println("Shutting down SNMP agent...")
	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down SNMP HTTP server: %v", err)
		}
	}

	s.wg.Wait()

	for _, dest := range s.trapDestinations {
		if dest.Conn != nil {
			dest.Conn.Close()
		}
	}

	return nil
}

// gaugeValue converts a reading to its Gauge32 form
func gaugeValue(signal string, value float64) uint32 {
	if vitals.Signal(signal).Unitless() {
		value *= 1000
	}
	if value < 0 {
		return 0
	}
	return uint32(value + 0.5)
}

func noSuchInstance(oid string) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.NoSuchInstance}
}

func parseRowColumn(rel string) (row, col int, ok bool) {
	parts := strings.Split(rel, ".")
	if len(parts) != 2 {
		return 0, 0, false
	}
	row, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	col, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return row, col, true
}

// oidCompare compares two OIDs numerically, arc by arc
func oidCompare(oid1, oid2 string) int {
	oid1 = strings.TrimPrefix(oid1, ".")
	oid2 = strings.TrimPrefix(oid2, ".")

	parts1 := strings.Split(oid1, ".")
	parts2 := strings.Split(oid2, ".")

	for i := 0; i < len(parts1) && i < len(parts2); i++ {
		n1, _ := strconv.Atoi(parts1[i])
		n2, _ := strconv.Atoi(parts2[i])

		if n1 < n2 {
			return -1
		} else if n1 > n2 {
			return 1
		}
	}

	if len(parts1) < len(parts2) {
		return -1
	} else if len(parts1) > len(parts2) {
		return 1
	}

	return 0
}

// sortOIDs sorts OIDs in lexicographic order
func sortOIDs(oids []string) {
	sort.Slice(oids, func(i, j int) bool {
		return oidCompare(oids[i], oids[j]) < 0
	})
}
