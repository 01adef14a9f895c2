/*
Package iso7816 implements data structures and logic to interact with smart cards according to the ISO/IEC 7816 standard.

This package provides the building blocks used to run APDU (Application Protocol Data Unit) scripts: Command and Response structures, a parser for raw C-APDUs read from a script, Status Word (SW) analysis, and a Client that resolves the transport-level status words on behalf of the script.

# Fundamentals

The communication with a smart card is strictly synchronous:
 1. The Host sends a Command APDU (Header + Optional Body).
 2. The Card processes it and returns a Response APDU (Optional Body + Trailer SW1/SW2).

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success (OK).
  - 0x61XX: Success, but response data is still available (XX bytes).
  - 0x6CXX: Error, wrong length expectation (XX is the correct length).
  - Other: Various error conditions.

# Usage Example: Transmitting a Script Line

	cmd, err := iso7816.ParseCommandAPDU(raw)
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Println(cmd) // CLA: 00 (Ch 0) | INS: 0xA4 ...

	// 'card' is any Transmitter, such as a PC/SC card handle.
	client := iso7816.NewClientWithOptions(card, iso7816.Options{AutoGetResponse: true})

	// The first exchange uses raw unchanged; a 61XX answer is completed with GET RESPONSE.
	resp, err := client.Transmit(raw)
	if err != nil {
	    log.Fatal(err)
	}

	rapdu, _ := iso7816.ParseResponseAPDU(resp)
	fmt.Println(rapdu.Status.Verbose())
*/
package iso7816
